package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/closet/internal/domain"
	"example.com/closet/internal/feed"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func activityAt(id string, at time.Time) domain.Activity {
	return domain.Activity{
		ID:          id,
		TenantID:    "closet",
		UserID:      "user-1",
		Kind:        feed.KindItemAdded,
		Description: "Added " + id,
		OccurredAt:  at,
		Source:      "test",
		Version:     "v1",
		CreatedAt:   at,
	}
}

func TestCreateGetAndIdempotency(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	at := time.Date(2026, time.March, 5, 9, 15, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, activityAt("a1", at), "key-1"))

	got, err := repo.Get(ctx, "closet", "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, feed.KindItemAdded, got.Kind)
	require.True(t, at.Equal(got.OccurredAt))

	missing, err := repo.Get(ctx, "other-tenant", "a1")
	require.NoError(t, err)
	require.Nil(t, missing)

	replay, err := repo.FindByIdempotency(ctx, "closet", "user-1", "key-1")
	require.NoError(t, err)
	require.Equal(t, "a1", replay.ID)

	none, err := repo.FindByIdempotency(ctx, "closet", "user-1", "")
	require.NoError(t, err)
	require.Nil(t, none)

	err = repo.Create(ctx, activityAt("a2", at), "key-1")
	require.ErrorIs(t, err, domain.ErrDuplicateIdempotencyKey)

	err = repo.Create(ctx, activityAt("a1", at), "")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrDuplicateIdempotencyKey)
}

func TestListByUserNewestFirstWithCursor(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	base := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, activityAt(fmt.Sprintf("a%d", i), base.Add(time.Duration(-i)*time.Hour)), ""))
	}
	// Sub-second precision must not break ordering.
	require.NoError(t, repo.Create(ctx, activityAt("late", base.Add(1500*time.Millisecond)), ""))

	page, next, err := repo.ListByUser(ctx, "closet", "user-1", nil, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"late", "a0", "a1"}, activityIDs(page))
	require.NotNil(t, next)

	rest, next, err := repo.ListByUser(ctx, "closet", "user-1", next, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"a2", "a3", "a4"}, activityIDs(rest))
	require.NotNil(t, next)

	empty, next, err := repo.ListByUser(ctx, "closet", "user-1", next, 3)
	require.NoError(t, err)
	require.Empty(t, empty)
	require.Nil(t, next)
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "closet.db")
	repo, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = Open("  ")
	require.Error(t, err)
}

func activityIDs(activities []domain.Activity) []string {
	out := make([]string, 0, len(activities))
	for _, a := range activities {
		out = append(out, a.ID)
	}
	return out
}
