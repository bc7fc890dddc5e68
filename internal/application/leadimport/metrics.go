package leadimport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

var (
	rowsParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lead_import",
		Subsystem: "parse",
		Name:      "rows_total",
		Help:      "Total number of staged rows broken down by validation status.",
	}, []string{"status"})

	rowsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lead_import",
		Subsystem: "commit",
		Name:      "rows_total",
		Help:      "Total number of committed rows broken down by outcome.",
	}, []string{"outcome"})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lead_import",
		Subsystem: "jobs",
		Name:      "finished_total",
		Help:      "Total number of import jobs that reached a terminal status.",
	}, []string{"status"})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lead_import",
		Subsystem: "batch",
		Name:      "duration_seconds",
		Help:      "Duration of one parse or commit batch.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"phase"})
)

func recordParsedBatch(rows []domain.ImportRow, started time.Time) {
	for _, row := range rows {
		rowsParsed.WithLabelValues(string(row.Status)).Inc()
	}
	batchDuration.WithLabelValues("parse").Observe(time.Since(started).Seconds())
}

func recordCommittedBatch(delta domain.CommitDelta, started time.Time) {
	if created := delta.Imported - delta.Updated; created > 0 {
		rowsCommitted.WithLabelValues(string(domain.OutcomeImported)).Add(float64(created))
	}
	if delta.Updated > 0 {
		rowsCommitted.WithLabelValues(string(domain.OutcomeUpdated)).Add(float64(delta.Updated))
	}
	if delta.Skipped > 0 {
		rowsCommitted.WithLabelValues(string(domain.OutcomeSkipped)).Add(float64(delta.Skipped))
	}
	batchDuration.WithLabelValues("commit").Observe(time.Since(started).Seconds())
}

func recordJobFinished(status domain.Status) {
	jobsFinished.WithLabelValues(string(status)).Inc()
}
