package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPresentationForKnownKinds(t *testing.T) {
	for _, kind := range Kinds {
		p := PresentationFor(kind)
		require.NotEmpty(t, p.Icon, kind)
		require.NotEmpty(t, p.Color, kind)
		require.NotEmpty(t, p.Background, kind)
		require.True(t, kind.Known())
	}
	require.Equal(t, "flame-outline", PresentationFor(KindStreakReached).Icon)
}

func TestPresentationForUnknownKindFallsBack(t *testing.T) {
	require.False(t, Kind("some_future_kind").Known())
	require.Equal(t, PresentationFor(KindOutfitLogged), PresentationFor("some_future_kind"))
	require.Equal(t, PresentationFor(KindOutfitLogged), PresentationFor(""))
}

func TestFormatTime(t *testing.T) {
	require.Equal(t, "09:05", FormatTime(time.Date(2026, 3, 5, 9, 5, 59, 0, time.UTC)))
	require.Equal(t, "23:00", FormatTime(time.Date(2026, 3, 5, 23, 0, 0, 0, time.UTC)))
}
