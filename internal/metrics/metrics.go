package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	FetchCycles     prometheus.Counter
	FetchFailures   prometheus.Counter
	MessagesListed  prometheus.Counter
	JobsEnqueued    prometheus.Counter
	DuplicateJobs   prometheus.Counter
	Classifications *prometheus.CounterVec
	RepliesSent     prometheus.Counter
	ReplyRetries    prometheus.Counter
	ReplyFailures   prometheus.Counter
	DuplicateClaims prometheus.Counter
	ProcessingTime  prometheus.Histogram
	FetchTime       prometheus.Histogram
	WorkersBusy     prometheus.Gauge
	QueueDepth      *prometheus.GaugeVec
}

// NewMetrics registers metrics with the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers metrics with reg, so tests can use a private registry
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FetchCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_fetch_cycles_total",
			Help: "Total number of mailbox fetch cycles",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_fetch_failures_total",
			Help: "Total number of fetch cycles that failed",
		}),
		MessagesListed: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_messages_listed_total",
			Help: "Total number of messages returned by the mailbox",
		}),
		JobsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_jobs_enqueued_total",
			Help: "Total number of reply jobs enqueued",
		}),
		DuplicateJobs: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_duplicate_jobs_total",
			Help: "Messages skipped because a job was already active or the message was handled",
		}),
		Classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_mail_responder_classifications_total",
			Help: "Messages classified, by category",
		}, []string{"category"}),
		RepliesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_replies_sent_total",
			Help: "Total number of replies sent",
		}),
		ReplyRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_reply_retries_total",
			Help: "Total number of transient failures scheduled for retry",
		}),
		ReplyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_reply_failures_total",
			Help: "Total number of jobs that failed permanently",
		}),
		DuplicateClaims: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_duplicate_claims_total",
			Help: "Jobs skipped because the message was already replied to",
		}),
		ProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "smart_mail_responder_job_duration_seconds",
			Help:    "Time spent processing a reply job",
			Buckets: prometheus.DefBuckets,
		}),
		FetchTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "smart_mail_responder_fetch_duration_seconds",
			Help:    "Time spent in a fetch cycle",
			Buckets: prometheus.DefBuckets,
		}),
		WorkersBusy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "smart_mail_responder_workers_busy",
			Help: "Number of workers currently processing a job",
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smart_mail_responder_jobs",
			Help: "Reply jobs by status",
		}, []string{"status"}),
	}
}
