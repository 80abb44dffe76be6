// Package domain defines the business logic for the activity feed service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"example.com/closet/internal/feed"
	"example.com/closet/internal/observability"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrInvalidActivity wraps validation failures on create.
	ErrInvalidActivity = errors.New("invalid activity")
	// ErrDuplicateIdempotencyKey is returned by repositories when another
	// request already stored an activity under the same idempotency key.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// DefaultFeedLimit bounds how many records a feed request loads.
const DefaultFeedLimit = 100

// ActivityRepository captures persistence operations.
type ActivityRepository interface {
	FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*Activity, error)
	Create(ctx context.Context, activity Activity, idempotencyKey string) error
	Get(ctx context.Context, tenantID, activityID string) (*Activity, error)
	ListByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for creates and feed labels.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger used for feed diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithYearLabels makes feed date labels carry the year when it differs from the current one.
func WithYearLabels(enabled bool) Option {
	return func(s *Service) {
		s.yearLabels = enabled
	}
}

// Service orchestrates activity workflows.
type Service struct {
	repo       ActivityRepository
	now        func() time.Time
	logger     *log.Logger
	yearLabels bool
}

// NewService constructs a Service.
func NewService(repo ActivityRepository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordActivityInput captures the payload from the API and consumer layers.
type RecordActivityInput struct {
	TenantID       string
	UserID         string
	Kind           feed.Kind
	Description    string
	OccurredAt     time.Time
	Source         string
	IdempotencyKey string
}

// Validate ensures the input is complete.
func (in RecordActivityInput) Validate() error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidActivity)
	case strings.TrimSpace(string(in.Kind)) == "":
		return fmt.Errorf("%w: kind is required", ErrInvalidActivity)
	case strings.TrimSpace(in.Description) == "":
		return fmt.Errorf("%w: description is required", ErrInvalidActivity)
	case in.OccurredAt.IsZero():
		return fmt.Errorf("%w: occurred_at is required", ErrInvalidActivity)
	}
	return nil
}

// RecordActivity stores a new activity. A repeated idempotency key returns
// the stored activity with replay set.
func (s *Service) RecordActivity(ctx context.Context, input RecordActivityInput) (*Activity, bool, error) {
	if err := input.Validate(); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindByIdempotency(ctx, input.TenantID, input.UserID, input.IdempotencyKey)
	if err != nil {
		return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if existing != nil {
		return existing, true, nil
	}

	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = "api"
	}

	activity := Activity{
		ID:          uuid.NewString(),
		TenantID:    input.TenantID,
		UserID:      input.UserID,
		Kind:        input.Kind,
		Description: strings.TrimSpace(input.Description),
		OccurredAt:  input.OccurredAt.UTC(),
		Source:      source,
		Version:     "v1",
		CreatedAt:   s.now().UTC(),
	}

	err = s.repo.Create(ctx, activity, input.IdempotencyKey)
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		// A concurrent request with the same key won the insert.
		stored, lookupErr := s.repo.FindByIdempotency(ctx, input.TenantID, input.UserID, input.IdempotencyKey)
		if lookupErr != nil {
			return nil, false, fmt.Errorf("lookup idempotency key: %w", lookupErr)
		}
		if stored == nil {
			return nil, false, fmt.Errorf("create activity: %w", err)
		}
		return stored, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create activity: %w", err)
	}
	return &activity, false, nil
}

// GetActivity fetches by ID.
func (s *Service) GetActivity(ctx context.Context, tenantID, activityID string) (*Activity, error) {
	activity, err := s.repo.Get(ctx, tenantID, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// ListActivity returns a user's activity newest first with cursor pagination.
func (s *Service) ListActivity(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return s.repo.ListByUser(ctx, tenantID, userID, cursor, limit)
}

// FeedQuery selects how a feed is built.
type FeedQuery struct {
	Location *time.Location
	Limit    int
}

// FeedItem is one record decorated for display.
type FeedItem struct {
	Record       feed.Record
	Presentation feed.Presentation
	Time         string
}

// FeedGroup is a labeled day bucket of feed items.
type FeedGroup struct {
	Label string
	Items []FeedItem
}

// FeedView is the grouped activity feed for one user.
type FeedView struct {
	Groups      []FeedGroup
	Skipped     []feed.Skipped
	Total       int
	GeneratedAt time.Time
}

// Feed loads the user's most recent activity and groups it by day in the
// requested location.
func (s *Service) Feed(ctx context.Context, tenantID, userID string, query FeedQuery) (FeedView, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	loc := query.Location
	if loc == nil {
		loc = time.UTC
	}

	activities, _, err := s.repo.ListByUser(ctx, tenantID, userID, nil, limit)
	if err != nil {
		return FeedView{}, fmt.Errorf("list activity: %w", err)
	}

	records := make([]feed.Record, 0, len(activities))
	for _, a := range activities {
		records = append(records, a.Record())
	}

	now := s.now().In(loc)
	var opts []feed.Option
	if s.yearLabels {
		opts = append(opts, feed.WithYearLabels())
	}
	result := feed.GroupByDate(records, now, opts...)
	view := BuildFeedView(result, loc)
	view.GeneratedAt = now

	observability.RecordFeedBuilt(len(view.Groups), view.Total, len(view.Skipped))
	if len(result.Skipped) > 0 {
		s.logger.Warn("feed skipped records with malformed timestamps", "user_id", userID, "ids", result.SkippedIDs())
	}
	return view, nil
}

// BuildFeedView decorates a grouping result with presentation metadata and
// the time of day of every item in loc.
func BuildFeedView(result feed.Result, loc *time.Location) FeedView {
	view := FeedView{
		Groups:  make([]FeedGroup, 0, len(result.Groups)),
		Skipped: result.Skipped,
		Total:   result.Total(),
	}
	for _, g := range result.Groups {
		group := FeedGroup{Label: g.Label, Items: make([]FeedItem, 0, len(g.Items))}
		for _, record := range g.Items {
			item := FeedItem{Record: record, Presentation: feed.PresentationFor(record.Kind)}
			if ts, err := record.Time(loc); err == nil {
				item.Time = feed.FormatTime(ts.In(loc))
			}
			group.Items = append(group.Items, item)
		}
		view.Groups = append(view.Groups, group)
	}
	return view
}
