package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcode_jobs_total",
			Help: "Transcode jobs by outcome",
		},
		[]string{"outcome"}, // completed, failed, skipped, not_found
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transcode_job_duration_seconds",
			Help:    "Wall time of a transcode job",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400, 4800},
		},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transcode_jobs_in_flight",
			Help: "Transcode jobs currently running in this process",
		},
	)

	EncoderInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcode_encoder_invocations_total",
			Help: "Encoder subprocess invocations",
		},
		[]string{"kind", "result"}, // kind: thumbnail, rendition
	)

	StuckVideos = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transcode_stuck_videos",
			Help: "Videos found in processing past the stale threshold by the last sweep",
		},
	)
)

// Outbox metrics
var (
	OutboxPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transcode_outbox_published_total",
			Help: "Outbox entries handed to the queue",
		},
	)

	OutboxPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transcode_outbox_publish_errors_total",
			Help: "Outbox entries that could not be published",
		},
	)
)

// Gateway metrics
var (
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_gateway_requests_total",
			Help: "Media gateway requests",
		},
		[]string{"kind", "status"}, // kind: master, manifest, segment, status
	)
)
