//go:build integration

package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/closet/internal/domain"
	"example.com/closet/internal/events"
	"example.com/closet/internal/feed"
	"example.com/closet/internal/persistence/postgres"
)

const activityTopic = "closet_activity_events"

func TestDispatcherPublishesRecordedActivity(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	tenantID := uuid.NewString()
	activity, eventID := seedActivity(t, ctx, pool, tenantID, "user-1")

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, activityTopic, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)

	msg := producer.writes[0].messages[0]
	require.Equal(t, tenantID+":user-1", string(msg.Key))
	require.Equal(t, postgres.EventActivityRecorded, headerValue(msg, "event_type"))
	require.Equal(t, tenantID, headerValue(msg, "tenant_id"))
	require.Equal(t, activityTopic+"-value", headerValue(msg, "schema_subject"))

	recorded := decodeRecorded(t, msg.Value, 42)
	require.Equal(t, activity.ID, recorded.ActivityID)
	require.Equal(t, string(feed.KindItemAdded), recorded.Kind)
	require.Equal(t, "You added Linen shirt to your closet", recorded.Description)
	require.Equal(t, "user-1", recorded.UserID)
	require.True(t, activity.OccurredAt.Equal(recorded.OccurredAt))

	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(deliveredCounter), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var publishedAt *time.Time
	require.NoError(t, pool.QueryRow(ctx, `SELECT published_at FROM outbox WHERE event_id = $1`, eventID).Scan(&publishedAt))
	require.NotNil(t, publishedAt)
}

func TestDispatcherRoutesActivityToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	tenantID := uuid.NewString()
	activity, _ := seedActivity(t, ctx, pool, tenantID, "user-1")

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 7}, 10*time.Millisecond, 5)

	beforeFailed := testutil.ToFloat64(failedCounter)
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues(activityTopic))

	require.NoError(t, dispatcher.processBatch(ctx))

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues(activityTopic)), 0.0001)

	var (
		aggregateID  string
		partitionKey string
		reason       string
	)
	err := pool.QueryRow(ctx,
		`SELECT aggregate_id, partition_key, reason FROM outbox_dlq WHERE tenant_id = $1`, tenantID,
	).Scan(&aggregateID, &partitionKey, &reason)
	require.NoError(t, err)
	require.Equal(t, activity.ID, aggregateID)
	require.Equal(t, tenantID+":user-1", partitionKey)
	require.Contains(t, reason, "kafka write failed")

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherCachesSchemaIDsAcrossBatch(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	tenantID := uuid.NewString()
	first, _ := seedActivity(t, ctx, pool, tenantID, "user-1")
	second, _ := seedActivity(t, ctx, pool, tenantID, "user-2")

	producer := &stubProducer{}
	registry := &stubRegistry{id: 21}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Len(t, producer.writes[0].messages, 2)
	require.Len(t, registry.calls, 1, "schema registry should be invoked once due to cache")
	require.Equal(t, activityTopic+"-value", registry.calls[0].subject)

	keys := map[string]string{}
	for _, msg := range producer.writes[0].messages {
		recorded := decodeRecorded(t, msg.Value, 21)
		keys[recorded.ActivityID] = string(msg.Key)
	}
	require.Equal(t, map[string]string{
		first.ID:  tenantID + ":user-1",
		second.ID: tenantID + ":user-2",
	}, keys)

	require.InDelta(t, beforeDelivered+2, testutil.ToFloat64(deliveredCounter), 0.0001)
}

func TestDispatcherUnknownSchemaMovesEventsToDLQ(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	tenantID := uuid.NewString()
	_, eventID := seedActivity(t, ctx, pool, tenantID, "user-1")
	_, err := pool.Exec(ctx, `UPDATE outbox SET event_type = 'activity.exploded' WHERE event_id = $1`, eventID)
	require.NoError(t, err)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 99}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	beforeFailed := testutil.ToFloat64(failedCounter)
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues(activityTopic))

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Empty(t, producer.writes, "unknown schema should skip kafka writes")
	require.Empty(t, registry.calls, "schema registry should not be invoked when metadata missing")

	var dlqCount int
	var reason string
	err = pool.QueryRow(ctx, `SELECT COUNT(*), MAX(reason) FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&dlqCount, &reason)
	require.NoError(t, err)
	require.Equal(t, 1, dlqCount)
	require.Contains(t, reason, "no schema metadata for event_type=activity.exploded")

	var publishedAt *time.Time
	require.NoError(t, pool.QueryRow(ctx, `SELECT published_at FROM outbox WHERE event_id = $1`, eventID).Scan(&publishedAt))
	require.NotNil(t, publishedAt, "event should still be marked as published")

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues(activityTopic)), 0.0001)
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: append([]kafka.Message(nil), msgs...)})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	return s.id, nil
}

// seedActivity records an activity through the postgres repository so the
// outbox row is the one the API writes. It returns the outbox event ID.
func seedActivity(t *testing.T, ctx context.Context, pool *pgxpool.Pool, tenantID, userID string) (domain.Activity, int64) {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	activity := domain.Activity{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		UserID:      userID,
		Kind:        feed.KindItemAdded,
		Description: "You added Linen shirt to your closet",
		OccurredAt:  now.Add(-time.Hour),
		Source:      "integration-test",
		Version:     "v1",
		CreatedAt:   now,
	}
	require.NoError(t, postgres.NewRepository(pool).Create(ctx, activity, uuid.NewString()))

	var eventID int64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT event_id FROM outbox WHERE aggregate_id = $1 AND event_type = $2`,
		activity.ID, postgres.EventActivityRecorded,
	).Scan(&eventID))
	return activity, eventID
}

// decodeRecorded strips the schema registry frame and decodes the payload.
func decodeRecorded(t *testing.T, value []byte, schemaID int) events.ActivityRecorded {
	t.Helper()

	require.Greater(t, len(value), 5)
	require.Equal(t, byte(0), value[0])
	require.Equal(t, uint32(schemaID), binary.BigEndian.Uint32(value[1:5]))

	var recorded events.ActivityRecorded
	require.NoError(t, json.Unmarshal(value[5:], &recorded))
	return recorded
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("closet"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pg.Terminate(ctx)
	}
	return pool, cleanup
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	t.Helper()

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	files, err := filepath.Glob(filepath.Join(resolvePath(t, "../../db/postgres/migrations"), "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	sort.Strings(files)

	for _, file := range files {
		contents, err := os.ReadFile(file)
		require.NoErrorf(t, err, "read migration %s", file)
		_, err = pool.Exec(ctx, string(contents))
		require.NoErrorf(t, err, "execute migration %s", file)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
