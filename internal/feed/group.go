package feed

import (
	"fmt"
	"time"
)

const (
	LabelToday     = "Today"
	LabelYesterday = "Yesterday"
)

// Group is a bucket of records sharing a day label.
type Group struct {
	Label string   `json:"label"`
	Items []Record `json:"items"`
}

// Skipped describes a record left out of the grouping.
type Skipped struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Result is the outcome of GroupByDate.
type Result struct {
	Groups  []Group
	Skipped []Skipped
}

// Total returns the number of grouped records.
func (r Result) Total() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Items)
	}
	return n
}

// SkippedIDs returns the IDs of the records left out of the grouping.
func (r Result) SkippedIDs() []string {
	ids := make([]string, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		ids = append(ids, s.ID)
	}
	return ids
}

type options struct {
	yearLabels bool
}

// Option tunes GroupByDate.
type Option func(*options)

// WithYearLabels appends the year to date labels whose year differs from now.
// Without it, "3 March" of two different years share one bucket.
func WithYearLabels() Option {
	return func(o *options) {
		o.yearLabels = true
	}
}

// GroupByDate buckets records by calendar day relative to now, using now's
// location. Groups appear in the order their label is first seen and items
// keep their input order. Records with unparseable timestamps are reported
// in Result.Skipped instead of being grouped.
func GroupByDate(records []Record, now time.Time, opts ...Option) Result {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	loc := now.Location()
	today := civilDate(now)
	yesterday := today.AddDate(0, 0, -1)

	result := Result{Groups: []Group{}}
	index := make(map[string]int)
	for _, record := range records {
		ts, err := record.Time(loc)
		if err != nil {
			result.Skipped = append(result.Skipped, Skipped{ID: record.ID, Reason: err.Error()})
			continue
		}

		day := civilDate(ts.In(loc))
		var label string
		switch {
		case day.Equal(today):
			label = LabelToday
		case day.Equal(yesterday):
			label = LabelYesterday
		default:
			label = dateLabel(day, now.Year(), o.yearLabels)
		}

		if i, ok := index[label]; ok {
			result.Groups[i].Items = append(result.Groups[i].Items, record)
			continue
		}
		index[label] = len(result.Groups)
		result.Groups = append(result.Groups, Group{Label: label, Items: []Record{record}})
	}
	return result
}

// civilDate truncates t to midnight of its calendar day, in UTC, so day
// arithmetic is unaffected by DST transitions.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateLabel(day time.Time, currentYear int, withYear bool) string {
	if withYear && day.Year() != currentYear {
		return fmt.Sprintf("%d %s %d", day.Day(), day.Month(), day.Year())
	}
	return fmt.Sprintf("%d %s", day.Day(), day.Month())
}
