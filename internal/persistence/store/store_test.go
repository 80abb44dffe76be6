package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/closet/internal/config"
	"example.com/closet/internal/domain"
	"example.com/closet/internal/feed"
)

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{StoreDriver: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "closet.db")}

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()
	require.Nil(t, s.Pool)

	svc := domain.NewService(s.Repository)
	activity, replay, err := svc.RecordActivity(ctx, domain.RecordActivityInput{
		TenantID:    "closet",
		UserID:      "user-1",
		Kind:        feed.KindStreakReached,
		Description: "You reached a 3 day streak",
		OccurredAt:  time.Date(2026, time.March, 5, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.False(t, replay)

	got, err := s.Repository.Get(ctx, "closet", activity.ID)
	require.NoError(t, err)
	require.Equal(t, "You reached a 3 day streak", got.Description)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreDriver: "mongo"})
	require.ErrorContains(t, err, "unknown store driver")
}
