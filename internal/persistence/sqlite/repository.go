// Package sqlite stores activity in a local SQLite database for development and single-node installs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	modernc "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"example.com/closet/internal/domain"
	"example.com/closet/internal/feed"
	"example.com/closet/internal/observability"
	"example.com/closet/internal/persistence"
)

const driverName = "sqlite"

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const activityColumns = `activity_id, tenant_id, user_id, kind, description, occurred_at, source, version, created_at`

// Repository is a database/sql backed activity repository.
type Repository struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every pooled connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activities (
			activity_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			description TEXT NOT NULL,
			occurred_at TEXT NOT NULL,
			source TEXT NOT NULL,
			idempotency_key TEXT,
			version TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS activities_idempotency_idx
			ON activities(tenant_id, user_id, idempotency_key)
			WHERE idempotency_key IS NOT NULL;`,
		`CREATE INDEX IF NOT EXISTS activities_user_feed_idx
			ON activities(tenant_id, user_id, occurred_at DESC, activity_id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// FindByIdempotency checks if an activity already exists for the supplied idempotency key.
func (r *Repository) FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*domain.Activity, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE tenant_id = ? AND user_id = ? AND idempotency_key = ?`,
		tenantID, userID, idempotencyKey,
	)
	return scanOptional(row)
}

// Create inserts an activity.
func (r *Repository) Create(ctx context.Context, activity domain.Activity, idempotencyKey string) error {
	var key any
	if idempotencyKey != "" {
		key = idempotencyKey
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activities (activity_id, tenant_id, user_id, kind, description, occurred_at, source, idempotency_key, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		activity.ID,
		activity.TenantID,
		activity.UserID,
		string(activity.Kind),
		activity.Description,
		formatTime(activity.OccurredAt),
		activity.Source,
		key,
		activity.Version,
		formatTime(activity.CreatedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	observability.RecordActivityPersisted(activity.CreatedAt)
	return nil
}

// Get retrieves an activity by ID.
func (r *Repository) Get(ctx context.Context, tenantID, activityID string) (*domain.Activity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE tenant_id = ? AND activity_id = ?`,
		tenantID, activityID,
	)
	return scanOptional(row)
}

// ListByUser returns a user's activities newest first.
func (r *Repository) ListByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id = ? AND user_id = ?`
	args := []any{tenantID, userID}
	if cursor != nil {
		ts := formatTime(cursor.OccurredAt)
		query += ` AND (occurred_at < ? OR (occurred_at = ? AND activity_id < ?))`
		args = append(args, ts, ts, cursor.ID)
	}
	query += ` ORDER BY occurred_at DESC, activity_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return results, persistence.NextCursor(results, limit), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOptional(row scanner) (*domain.Activity, error) {
	activity, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func scanActivity(row scanner) (domain.Activity, error) {
	var (
		a                     domain.Activity
		kind                  string
		occurredAt, createdAt string
	)
	if err := row.Scan(&a.ID, &a.TenantID, &a.UserID, &kind, &a.Description, &occurredAt, &a.Source, &a.Version, &createdAt); err != nil {
		return domain.Activity{}, err
	}
	a.Kind = feed.Kind(kind)

	var err error
	if a.OccurredAt, err = parseTime(occurredAt); err != nil {
		return domain.Activity{}, fmt.Errorf("parse occurred_at for %s: %w", a.ID, err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Activity{}, fmt.Errorf("parse created_at for %s: %w", a.ID, err)
	}
	return a, nil
}

// isUniqueViolation reports a hit on activities_idempotency_idx, the only
// unique index besides the primary key.
func isUniqueViolation(err error) bool {
	var sqliteErr *modernc.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
