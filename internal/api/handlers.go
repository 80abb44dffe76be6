// Package api exposes HTTP handlers for the closet activity service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/closet/internal/auth"
	"example.com/closet/internal/domain"
	"example.com/closet/internal/feed"
	"example.com/closet/internal/persistence"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
	maxFeedLimit     = 500
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service     *domain.Service
	defaultZone *time.Location
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithDefaultLocation sets the zone used for feed labels when a request has no tz parameter.
func WithDefaultLocation(loc *time.Location) HandlerOption {
	return func(h *Handler) {
		if loc != nil {
			h.defaultZone = loc
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts ...HandlerOption) *Handler {
	h := &Handler{service: service, defaultZone: time.UTC}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/users/me/activity", auth.RequireScope(auth.ScopeActivityRead, h.listActivity))
	mux.HandleFunc("POST /v1/users/me/activity", auth.RequireScope(auth.ScopeActivityWrite, h.recordActivity))
	mux.HandleFunc("GET /v1/users/me/activity/feed", auth.RequireScope(auth.ScopeActivityRead, h.activityFeed))
	mux.HandleFunc("GET /v1/activities/{id}", auth.RequireScope(auth.ScopeActivityRead, h.getActivity))
	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) recordActivity(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	var req RecordActivityRequest
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	occurredAt, err := req.occurredAt()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	activity, replay, err := h.service.RecordActivity(r.Context(), domain.RecordActivityInput{
		TenantID:       claims.TenantID,
		UserID:         claims.Subject,
		Kind:           req.Kind,
		Description:    req.Description,
		OccurredAt:     occurredAt,
		Source:         req.Source,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if errors.Is(err, domain.ErrInvalidActivity) {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	status := http.StatusAccepted
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, RecordActivityResponse{
		ActivityID: activity.ID,
		Replay:     replay,
		Activity:   toActivityView(*activity),
	})
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	activity, err := h.service.GetActivity(r.Context(), claims.TenantID, id)
	if errors.Is(err, domain.ErrActivityNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	// Activity of other users in the tenant is not visible through this API.
	if activity.UserID != claims.Subject {
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) listActivity(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.ListActivity(r.Context(), claims.TenantID, claims.Subject, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityView(a))
	}
	writeJSON(w, http.StatusOK, ListActivityResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) activityFeed(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())

	loc := h.defaultZone
	if tz := strings.TrimSpace(r.URL.Query().Get("tz")); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "unknown time zone "+strconv.Quote(tz))
			return
		}
		loc = parsed
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"), domain.DefaultFeedLimit, maxFeedLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	view, err := h.service.Feed(r.Context(), claims.TenantID, claims.Subject, domain.FeedQuery{Location: loc, Limit: limit})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toFeedResponse(view, loc))
}

func parseLimit(raw string, fallback, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if parsed > max {
		parsed = max
	}
	return parsed, nil
}

// RecordActivityRequest is the payload for POST /v1/users/me/activity.
type RecordActivityRequest struct {
	Kind        feed.Kind `json:"kind"`
	Description string    `json:"description"`
	Timestamp   string    `json:"timestamp"`
	Source      string    `json:"source"`
}

func (r RecordActivityRequest) occurredAt() (time.Time, error) {
	if strings.TrimSpace(r.Timestamp) == "" {
		return time.Time{}, errors.New("timestamp is required")
	}
	return feed.ParseTimestamp(r.Timestamp, time.UTC)
}

// RecordActivityResponse describes the response body for create.
type RecordActivityResponse struct {
	ActivityID string       `json:"activity_id"`
	Replay     bool         `json:"idempotent_replay"`
	Activity   ActivityView `json:"activity"`
}

// ActivityView is the wire shape of one activity record.
type ActivityView struct {
	ID          string    `json:"id"`
	Kind        feed.Kind `json:"kind"`
	Description string    `json:"description"`
	Timestamp   string    `json:"timestamp"`
	Source      string    `json:"source"`
	Version     string    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListActivityResponse packages list results.
type ListActivityResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// FeedItemView is one decorated record in a feed group.
type FeedItemView struct {
	ID          string    `json:"id"`
	Kind        feed.Kind `json:"kind"`
	Description string    `json:"description"`
	Timestamp   string    `json:"timestamp"`
	Time        string    `json:"time"`
	Icon        string    `json:"icon"`
	Color       string    `json:"color"`
	Background  string    `json:"background"`
}

// FeedGroupView is a labeled day bucket.
type FeedGroupView struct {
	Label string         `json:"label"`
	Items []FeedItemView `json:"items"`
}

// SkippedView names a record left out of the feed.
type SkippedView struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// FeedResponse is the grouped feed body.
type FeedResponse struct {
	Groups      []FeedGroupView `json:"groups"`
	Skipped     []SkippedView   `json:"skipped"`
	Total       int             `json:"total"`
	TimeZone    string          `json:"time_zone"`
	GeneratedAt time.Time       `json:"generated_at"`
}

func toFeedResponse(view domain.FeedView, loc *time.Location) FeedResponse {
	resp := FeedResponse{
		Groups:      make([]FeedGroupView, 0, len(view.Groups)),
		Skipped:     make([]SkippedView, 0, len(view.Skipped)),
		Total:       view.Total,
		TimeZone:    loc.String(),
		GeneratedAt: view.GeneratedAt,
	}
	for _, g := range view.Groups {
		group := FeedGroupView{Label: g.Label, Items: make([]FeedItemView, 0, len(g.Items))}
		for _, item := range g.Items {
			group.Items = append(group.Items, FeedItemView{
				ID:          item.Record.ID,
				Kind:        item.Record.Kind,
				Description: item.Record.Description,
				Timestamp:   item.Record.Timestamp,
				Time:        item.Time,
				Icon:        item.Presentation.Icon,
				Color:       item.Presentation.Color,
				Background:  item.Presentation.Background,
			})
		}
		resp.Groups = append(resp.Groups, group)
	}
	for _, s := range view.Skipped {
		resp.Skipped = append(resp.Skipped, SkippedView{ID: s.ID, Reason: s.Reason})
	}
	return resp
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(a domain.Activity) ActivityView {
	record := a.Record()
	return ActivityView{
		ID:          record.ID,
		Kind:        record.Kind,
		Description: record.Description,
		Timestamp:   record.Timestamp,
		Source:      a.Source,
		Version:     a.Version,
		CreatedAt:   a.CreatedAt,
	}
}
