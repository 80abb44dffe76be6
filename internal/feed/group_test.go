package feed

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
)

var march5 = time.Date(2026, time.March, 5, 18, 30, 0, 0, time.UTC)

func labels(groups []Group) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Label)
	}
	return out
}

func ids(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestGroupByDateLabels(t *testing.T) {
	records := []Record{
		{ID: "a", Kind: KindOutfitLogged, Timestamp: "2026-03-05T09:00:00Z"},
		{ID: "b", Kind: KindItemAdded, Timestamp: "2026-03-04T22:15:00Z"},
		{ID: "c", Kind: KindStreakReached, Timestamp: "2026-03-03T08:00:00Z"},
	}

	result := GroupByDate(records, march5)

	require.Equal(t, []string{"Today", "Yesterday", "3 March"}, labels(result.Groups))
	require.Empty(t, result.Skipped)
	require.Equal(t, 3, result.Total())
}

func TestGroupByDateFirstSeenOrder(t *testing.T) {
	records := []Record{
		{ID: "A", Timestamp: "2026-03-03T10:00:00Z"},
		{ID: "B", Timestamp: "2026-03-05T10:00:00Z"},
		{ID: "C", Timestamp: "2026-03-03T07:00:00Z"},
	}

	result := GroupByDate(records, march5)

	require.Equal(t, []string{"3 March", "Today"}, labels(result.Groups))
	require.Equal(t, []string{"A", "C"}, ids(result.Groups[0].Items))
	require.Equal(t, []string{"B"}, ids(result.Groups[1].Items))
}

func TestGroupByDateKeepsInputOrderWithinGroup(t *testing.T) {
	records := []Record{
		{ID: "1", Timestamp: "2026-03-05T08:00:00Z"},
		{ID: "2", Timestamp: "2026-03-05T17:00:00Z"},
		{ID: "3", Timestamp: "2026-03-05T01:00:00Z"},
	}

	result := GroupByDate(records, march5)

	require.Len(t, result.Groups, 1)
	require.Equal(t, []string{"1", "2", "3"}, ids(result.Groups[0].Items))
}

func TestGroupByDateEmptyInput(t *testing.T) {
	result := GroupByDate(nil, march5)
	require.NotNil(t, result.Groups)
	require.Empty(t, result.Groups)
	require.Empty(t, result.Skipped)
}

func TestGroupByDateIsolatesMalformedTimestamps(t *testing.T) {
	records := []Record{
		{ID: "ok-1", Timestamp: "2026-03-05T09:00:00Z"},
		{ID: "bad", Timestamp: "last tuesday"},
		{ID: "ok-2", Timestamp: "2026-03-01T09:00:00Z"},
		{ID: "missing"},
	}

	result := GroupByDate(records, march5)

	require.Equal(t, 2, result.Total())
	require.Equal(t, []string{"bad", "missing"}, result.SkippedIDs())
	for _, s := range result.Skipped {
		require.NotEmpty(t, s.Reason)
	}
}

func TestGroupByDateIsIdempotent(t *testing.T) {
	records := []Record{
		{ID: "a", Timestamp: "2026-03-05T09:00:00Z"},
		{ID: "b", Timestamp: "2026-02-28T09:00:00Z"},
		{ID: "c", Timestamp: "nope"},
	}
	snapshot := append([]Record(nil), records...)

	first := GroupByDate(records, march5)
	second := GroupByDate(records, march5)

	require.Equal(t, first, second)
	require.Equal(t, snapshot, records)
}

func TestGroupByDateUsesNowLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	now := time.Date(2026, time.March, 5, 8, 0, 0, 0, tokyo)
	records := []Record{
		// 2026-03-04 23:30 UTC is already 5 March in Tokyo.
		{ID: "late", Timestamp: "2026-03-04T23:30:00Z"},
		// Zone-less timestamps are read as Tokyo wall-clock time.
		{ID: "local", Timestamp: "2026-03-04T23:30:00"},
	}

	result := GroupByDate(records, now)

	require.Equal(t, []string{"Today", "Yesterday"}, labels(result.Groups))
}

func TestGroupByDateAcrossMonthAndYearBoundaries(t *testing.T) {
	now := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{ID: "y", Timestamp: "2025-12-31T23:59:59Z"},
		{ID: "old", Timestamp: "2025-12-30"},
	}

	result := GroupByDate(records, now)

	require.Equal(t, []string{"Yesterday", "30 December"}, labels(result.Groups))
}

func TestGroupByDateYearCollision(t *testing.T) {
	records := []Record{
		{ID: "this-year", Timestamp: "2026-03-01T10:00:00Z"},
		{ID: "last-year", Timestamp: "2025-03-01T10:00:00Z"},
	}

	merged := GroupByDate(records, march5)
	require.Equal(t, []string{"1 March"}, labels(merged.Groups))
	require.Equal(t, []string{"this-year", "last-year"}, ids(merged.Groups[0].Items))

	split := GroupByDate(records, march5, WithYearLabels())
	require.Equal(t, []string{"1 March", "1 March 2025"}, labels(split.Groups))
}

func TestParseTimestampFormats(t *testing.T) {
	cases := map[string]time.Time{
		"2026-03-05T10:11:12Z":          time.Date(2026, 3, 5, 10, 11, 12, 0, time.UTC),
		"2026-03-05T10:11:12.345Z":      time.Date(2026, 3, 5, 10, 11, 12, 345000000, time.UTC),
		"2026-03-05T10:11:12+02:00":     time.Date(2026, 3, 5, 8, 11, 12, 0, time.UTC),
		"2026-03-05T10:11:12":           time.Date(2026, 3, 5, 10, 11, 12, 0, time.UTC),
		"2026-03-05":                    time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		"  2026-03-05T10:11:12.5Z  ":    time.Date(2026, 3, 5, 10, 11, 12, 500000000, time.UTC),
		"2026-03-05T10:11":              time.Date(2026, 3, 5, 10, 11, 0, 0, time.UTC),
		"2026-03-05T10:11:12.000000001": time.Date(2026, 3, 5, 10, 11, 12, 1, time.UTC),
		"2026-03-09T01:00Z":             time.Date(2026, 3, 9, 1, 0, 0, 0, time.UTC),
		"2026-03-05T10:11+02:00":        time.Date(2026, 3, 5, 8, 11, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got, err := ParseTimestamp(raw, time.UTC)
		require.NoError(t, err, raw)
		require.True(t, want.Equal(got), "%s: want %s got %s", raw, want, got)
	}

	_, err := ParseTimestamp("05/03/2026", time.UTC)
	require.True(t, errors.Is(err, ErrMalformedTimestamp))
	_, err = ParseTimestamp("", time.UTC)
	require.ErrorIs(t, err, ErrMalformedTimestamp)
}

func TestGroupByDateAcceptsZonedMinutePrecision(t *testing.T) {
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{ID: "utc", Kind: KindOutfitLogged, Description: "Logged", Timestamp: "2026-03-09T01:00Z"},
		{ID: "offset", Kind: KindItemAdded, Description: "Added", Timestamp: "2026-03-09T00:30+02:00"},
	}

	result := GroupByDate(records, now)
	require.Empty(t, result.Skipped)
	require.Equal(t, []string{LabelToday, LabelYesterday}, labels(result.Groups))
	require.Equal(t, 2, result.Total())
}

func TestDateOnlyTimestampIsMidnightInLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	got, err := ParseTimestamp("2026-03-05", tokyo)
	require.NoError(t, err)
	require.True(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, tokyo).Equal(got))
}

func TestRecordDecodesLegacyFields(t *testing.T) {
	payload := []byte(`[
		{"_id":"65f1","type":"streak_reached","description":"7 day streak!","date":"2026-03-05T09:00:00.000Z"},
		{"id":"r2","kind":"item_added","description":"Added a scarf","timestamp":"2026-03-04T09:00:00Z"}
	]`)

	var records []Record
	require.NoError(t, json.Unmarshal(payload, &records))
	require.Equal(t, Record{ID: "65f1", Kind: KindStreakReached, Description: "7 day streak!", Timestamp: "2026-03-05T09:00:00.000Z"}, records[0])
	require.Equal(t, Record{ID: "r2", Kind: KindItemAdded, Description: "Added a scarf", Timestamp: "2026-03-04T09:00:00Z"}, records[1])
}

func TestFromTimeRoundTripsThroughGrouping(t *testing.T) {
	at := time.Date(2026, time.March, 4, 21, 0, 0, 0, time.UTC)
	record := FromTime("x", KindOutfitDeleted, "Deleted an outfit", at)

	result := GroupByDate([]Record{record}, march5)

	require.Equal(t, []string{"Yesterday"}, labels(result.Groups))
}
