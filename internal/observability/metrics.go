package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nha_sync"

// Metrics holds the Prometheus counters, histograms, and gauges for the sync jobs.
type Metrics struct {
	PipelineRunning prometheus.Gauge

	// Reconciliation metrics.
	RecordsInserted       *prometheus.CounterVec // labels: table={site_account,tr_bullets,references}
	DuplicatesSkipped     *prometheus.CounterVec // labels: table
	MarkersSet            *prometheus.CounterVec // labels: table
	ReviewUpdates         *prometheus.CounterVec // labels: intent={narrative_approve,mapping_approve,mapping_flag_for_review,reference_backfill}
	IncompleteSubmissions prometheus.Counter
	PhotosMigrated        prometheus.Counter
	PhotosSkipped         *prometheus.CounterVec // labels: reason={no_site,no_attachment}

	// Scoring and reference metrics.
	SitesScored     prometheus.Gauge
	MirrorEntries   prometheus.Gauge
	CitationsFilled prometheus.Counter

	// Job metrics.
	JobDuration    *prometheus.HistogramVec // labels: job
	JobErrors      *prometheus.CounterVec   // labels: job
	JobLastSuccess *prometheus.GaugeVec     // labels: job
}

// NewMetrics creates and registers all job metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.RecordsInserted,
		m.DuplicatesSkipped,
		m.MarkersSet,
		m.ReviewUpdates,
		m.IncompleteSubmissions,
		m.PhotosMigrated,
		m.PhotosSkipped,
		m.SitesScored,
		m.MirrorEntries,
		m.CitationsFilled,
		m.JobDuration,
		m.JobErrors,
		m.JobLastSuccess,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while the job scheduler is active, 0 when shut down.",
		}),
		RecordsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_inserted_total",
			Help:      "Rows inserted into authoritative tables by table.",
		}, []string{"table"}),
		DuplicatesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_skipped_total",
			Help:      "Candidate rows skipped because an identical row already exists.",
		}, []string{"table"}),
		MarkersSet: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "markers_set_total",
			Help:      "Form rows marked as consumed by table.",
		}, []string{"table"}),
		ReviewUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_updates_total",
			Help:      "Rows patched in place by review intent.",
		}, []string{"intent"}),
		IncompleteSubmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incomplete_submissions_total",
			Help:      "Update submissions left untouched because their approval answers are incomplete.",
		}),
		PhotosMigrated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "photos_migrated_total",
			Help:      "Photos moved from the form to the site layer.",
		}),
		PhotosSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "photos_skipped_total",
			Help:      "Photo submissions skipped by reason.",
		}, []string{"reason"}),
		SitesScored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sites_scored",
			Help:      "Number of sites in the latest priority export.",
		}),
		MirrorEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mirror_entries",
			Help:      "Number of rows in the reference mirror after the latest refresh.",
		}),
		CitationsFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "citations_filled_total",
			Help:      "References given a formatted citation.",
		}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of a complete job run.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"job"}),
		JobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_errors_total",
			Help:      "Failed job runs by job.",
		}, []string{"job"}),
		JobLastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run by job.",
		}, []string{"job"}),
	}
}
