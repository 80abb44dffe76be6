package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of a single DLQ manager pass over a dead-lettered activity event.
const (
	dlqOutcomeReplayed       = "replayed"
	dlqOutcomeRetryScheduled = "retry_scheduled"
	dlqOutcomeQuarantined    = "quarantined"
)

var (
	dlqOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "closet_activity",
		Subsystem: "dlq",
		Name:      "entries_handled_total",
		Help:      "Dead-lettered activity events handled by the DLQ manager, by event type and outcome.",
	}, []string{"event_type", "outcome"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "closet_activity",
		Subsystem: "dlq",
		Name:      "backlog_entries",
		Help:      "Activity events held in outbox_dlq, split into pending replay and quarantined.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(dlqOutcomeCounter, dlqBacklogGauge)
}

func recordDLQOutcome(entry dlqEntry, outcome string) {
	dlqOutcomeCounter.WithLabelValues(entry.EventType, outcome).Inc()
}

// updateBacklogGauge refreshes the pending and quarantined DLQ counts.
func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) error {
	var pending, quarantined int
	err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE quarantined_at IS NULL),
		        COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
		   FROM outbox_dlq`,
	).Scan(&pending, &quarantined)
	if err != nil {
		return err
	}
	setBacklog(pending, quarantined)
	return nil
}

func setBacklog(pending, quarantined int) {
	dlqBacklogGauge.WithLabelValues("pending").Set(float64(pending))
	dlqBacklogGauge.WithLabelValues("quarantined").Set(float64(quarantined))
}
