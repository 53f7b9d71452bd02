package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerlift",
		Subsystem: "ingest",
		Name:      "files_total",
		Help:      "Statement files processed, by extraction method and status.",
	}, []string{"method", "status"})

	rowsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerlift",
		Subsystem: "ingest",
		Name:      "rows_skipped_total",
		Help:      "Rows dropped during extraction, by extraction method.",
	}, []string{"method"})

	duplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledgerlift",
		Subsystem: "ingest",
		Name:      "duplicates_total",
		Help:      "Transactions flagged as duplicates.",
	})

	fileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledgerlift",
		Subsystem: "ingest",
		Name:      "file_duration_seconds",
		Help:      "End-to-end processing time per statement file.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)
