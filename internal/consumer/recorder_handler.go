package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"example.com/closet/internal/domain"
	"example.com/closet/internal/events"
	"example.com/closet/internal/feed"
)

// ActivityRecorder stores activity records.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, input domain.RecordActivityInput) (*domain.Activity, bool, error)
}

// RecorderHandler turns wardrobe events into activity records. The event ID
// is the idempotency key, so redelivered events do not duplicate activity.
type RecorderHandler struct {
	recorder ActivityRecorder
	logger   *log.Logger
}

// NewRecorderHandler constructs a RecorderHandler.
func NewRecorderHandler(recorder ActivityRecorder, logger *log.Logger) *RecorderHandler {
	if logger == nil {
		logger = log.Default().WithPrefix("recorder")
	}
	return &RecorderHandler{recorder: recorder, logger: logger}
}

var wardrobeKinds = map[string]feed.Kind{
	events.WardrobeOutfitLogged:  feed.KindOutfitLogged,
	events.WardrobeOutfitDeleted: feed.KindOutfitDeleted,
	events.WardrobeItemAdded:     feed.KindItemAdded,
	events.WardrobeStreakReached: feed.KindStreakReached,
}

// Handle records msg. Unknown event types are acknowledged and ignored.
func (h *RecorderHandler) Handle(ctx context.Context, msg Message) error {
	kind, ok := wardrobeKinds[msg.EventType]
	if !ok {
		h.logger.Debug("ignoring event", "event_type", msg.EventType)
		return nil
	}

	var event events.WardrobeEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrPermanent, msg.EventType, err)
	}

	tenantID := event.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = msg.Timestamp
	}

	activity, replay, err := h.recorder.RecordActivity(ctx, domain.RecordActivityInput{
		TenantID:       tenantID,
		UserID:         event.UserID,
		Kind:           kind,
		Description:    describe(kind, event),
		OccurredAt:     occurredAt,
		Source:         "wardrobe-events",
		IdempotencyKey: event.EventID,
	})
	if errors.Is(err, domain.ErrInvalidActivity) {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	if err != nil {
		return err
	}

	h.logger.Debug("recorded activity", "activity_id", activity.ID, "kind", kind, "replay", replay)
	return nil
}

// describe builds the sentence shown in the feed, for example
// "You logged an outfit for March 3rd".
func describe(kind feed.Kind, event events.WardrobeEvent) string {
	if d := strings.TrimSpace(event.Description); d != "" {
		return d
	}
	switch kind {
	case feed.KindOutfitLogged:
		if day, ok := outfitDay(event.OutfitDate); ok {
			return "You logged an outfit for " + day
		}
		return "You logged an outfit"
	case feed.KindOutfitDeleted:
		if day, ok := outfitDay(event.OutfitDate); ok {
			return "You deleted your outfit for " + day
		}
		return "You deleted an outfit"
	case feed.KindItemAdded:
		if name := strings.TrimSpace(event.ItemName); name != "" {
			return fmt.Sprintf("You added %s to your closet", name)
		}
		return "You added an item to your closet"
	case feed.KindStreakReached:
		if event.StreakDays > 0 {
			return fmt.Sprintf("You reached a %d day streak", event.StreakDays)
		}
		return "You reached a new streak"
	}
	return "New activity"
}

func outfitDay(date string) (string, bool) {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s %d%s", d.Month(), d.Day(), ordinalSuffix(d.Day())), true
}

func ordinalSuffix(n int) string {
	if n%100 >= 11 && n%100 <= 13 {
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}
