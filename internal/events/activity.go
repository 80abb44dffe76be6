// Package events defines the event payloads exchanged with the rest of the closet platform.
package events

import "time"

// ActivityRecorded is emitted when a wardrobe activity is stored.
type ActivityRecorded struct {
	ActivityID  string    `json:"activity_id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
	Source      string    `json:"source"`
	Version     string    `json:"version"`
}

// Wardrobe event types published by the closet services and turned into activity.
const (
	WardrobeOutfitLogged  = "outfit.logged"
	WardrobeOutfitDeleted = "outfit.deleted"
	WardrobeItemAdded     = "item.added"
	WardrobeStreakReached = "streak.reached"
)

// WardrobeEvent is the common envelope of wardrobe events.
type WardrobeEvent struct {
	EventID     string    `json:"event_id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	OutfitDate  string    `json:"outfit_date,omitempty"`
	ItemName    string    `json:"item_name,omitempty"`
	StreakDays  int       `json:"streak_days,omitempty"`
	Description string    `json:"description,omitempty"`
}
