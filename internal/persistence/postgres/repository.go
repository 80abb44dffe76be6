package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/closet/internal/domain"
	"example.com/closet/internal/events"
	"example.com/closet/internal/feed"
	"example.com/closet/internal/observability"
	"example.com/closet/internal/persistence"
)

const activityColumns = `activity_id, tenant_id, user_id, kind, description, occurred_at, source, version, created_at`

// Repository provides Postgres-backed persistence for activities and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// withTenant runs fn inside a transaction scoped to tenantID for row level security.
func (r *Repository) withTenant(ctx context.Context, tenantID string, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FindByIdempotency checks if an activity already exists for the supplied idempotency key.
func (r *Repository) FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*domain.Activity, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1 AND user_id=$2 AND idempotency_key=$3`

	var found *domain.Activity
	err := r.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		activity, err := scanActivity(tx.QueryRow(ctx, query, tenantID, userID, idempotencyKey))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = &activity
		return nil
	})
	return found, err
}

// Create persists the activity and records its outbox event inside a single transaction.
func (r *Repository) Create(ctx context.Context, activity domain.Activity, idempotencyKey string) error {
	err := r.withTenant(ctx, activity.TenantID, func(tx pgx.Tx) error {
		const insertActivity = `INSERT INTO activities (activity_id, tenant_id, user_id, kind, description, occurred_at, source, idempotency_key, version, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

		if _, err := tx.Exec(ctx, insertActivity,
			activity.ID,
			activity.TenantID,
			activity.UserID,
			string(activity.Kind),
			activity.Description,
			activity.OccurredAt,
			activity.Source,
			nullIfEmpty(idempotencyKey),
			activity.Version,
			activity.CreatedAt,
		); err != nil {
			if isIdempotencyConflict(err) {
				return domain.ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("insert activity: %w", err)
		}

		return r.insertOutbox(ctx, tx, activity, EventActivityRecorded, events.ActivityRecorded{
			ActivityID:  activity.ID,
			TenantID:    activity.TenantID,
			UserID:      activity.UserID,
			Kind:        string(activity.Kind),
			Description: activity.Description,
			OccurredAt:  activity.OccurredAt,
			Source:      activity.Source,
			Version:     activity.Version,
		})
	})
	if err != nil {
		return err
	}
	observability.RecordActivityPersisted(activity.CreatedAt)
	return nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, activity domain.Activity, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		activity.TenantID,
		"activity",
		activity.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(activity),
		body,
		fmt.Sprintf("%s:%s", activity.ID, eventType),
	)
	return err
}

// Get retrieves an activity by ID.
func (r *Repository) Get(ctx context.Context, tenantID, activityID string) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1 AND activity_id=$2`

	var found *domain.Activity
	err := r.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		activity, err := scanActivity(tx.QueryRow(ctx, query, tenantID, activityID))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = &activity
		return nil
	})
	return found, err
}

// ListByUser returns a user's activities newest first.
func (r *Repository) ListByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{tenantID, userID, limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1 AND user_id=$2`

	if cursor != nil {
		query += ` AND (occurred_at, activity_id) < ($4, $5)`
		args = append(args, cursor.OccurredAt, cursor.ID)
	}
	query += ` ORDER BY occurred_at DESC, activity_id DESC LIMIT $3`

	results := make([]domain.Activity, 0, limit)
	err := r.withTenant(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			activity, err := scanActivity(rows)
			if err != nil {
				return err
			}
			results = append(results, activity)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	return results, persistence.NextCursor(results, limit), nil
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var a domain.Activity
	var kind string
	err := row.Scan(&a.ID, &a.TenantID, &a.UserID, &kind, &a.Description, &a.OccurredAt, &a.Source, &a.Version, &a.CreatedAt)
	a.Kind = feed.Kind(kind)
	return a, err
}

const idempotencyIndex = "activities_idempotency_idx"

func isIdempotencyConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == idempotencyIndex
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventActivityRecorded is the outbox event type written on create.
const EventActivityRecorded = "activity.recorded"

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.Activity) string
}

var eventCatalog = map[string]EventMetadata{
	EventActivityRecorded: {
		Topic:         "closet_activity_events",
		SchemaSubject: "closet_activity_events-value",
		PartitionKeyFn: func(a domain.Activity) string {
			return fmt.Sprintf("%s:%s", a.TenantID, a.UserID)
		},
	},
}
