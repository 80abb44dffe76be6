package domain

import (
	"time"

	"example.com/closet/internal/feed"
)

// Activity is the canonical wardrobe activity row stored by the service.
type Activity struct {
	ID          string
	TenantID    string
	UserID      string
	Kind        feed.Kind
	Description string
	OccurredAt  time.Time
	Source      string
	Version     string
	CreatedAt   time.Time
}

// Record converts the activity to the wire record consumed by the feed.
func (a Activity) Record() feed.Record {
	return feed.FromTime(a.ID, a.Kind, a.Description, a.OccurredAt)
}

// Cursor models the pagination token.
type Cursor struct {
	OccurredAt time.Time
	ID         string
}
