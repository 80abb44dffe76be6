package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "closet_activity",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted.",
	})
	feedBuiltCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "closet_activity",
		Subsystem: "feed",
		Name:      "builds_total",
		Help:      "Number of grouped activity feeds built.",
	})
	feedGroupsHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "closet_activity",
		Subsystem: "feed",
		Name:      "groups_per_feed",
		Help:      "Number of day groups in each built feed.",
		Buckets:   prometheus.LinearBuckets(0, 2, 10),
	})
	feedItemsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "closet_activity",
		Subsystem: "feed",
		Name:      "items_grouped_total",
		Help:      "Number of records placed into feed groups.",
	})
	feedSkippedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "closet_activity",
		Subsystem: "feed",
		Name:      "records_skipped_total",
		Help:      "Number of records left out of a feed because of malformed timestamps.",
	})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, feedBuiltCounter, feedGroupsHistogram, feedItemsCounter, feedSkippedCounter)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordFeedBuilt tracks the shape of a built feed.
func RecordFeedBuilt(groups, items, skipped int) {
	feedBuiltCounter.Inc()
	feedGroupsHistogram.Observe(float64(groups))
	feedItemsCounter.Add(float64(items))
	if skipped > 0 {
		feedSkippedCounter.Add(float64(skipped))
	}
}
