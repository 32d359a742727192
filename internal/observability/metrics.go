package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssetsEnriched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medialib",
		Name:      "assets_enriched_total",
		Help:      "Total number of assets that finished enrichment",
	}, []string{"status"})

	EnrichmentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "medialib",
		Name:      "enrichment_stage_duration_seconds",
		Help:      "Duration of enrichment pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	DetectionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "medialib",
		Name:      "detection_retries_total",
		Help:      "Total number of detection adapter retries",
	})

	FacesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medialib",
		Name:      "faces_resolved_total",
		Help:      "Total number of face detections resolved to persons",
	}, []string{"outcome"}) // matched, created

	PersonsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "medialib",
		Name:      "persons_active",
		Help:      "Number of non-retired persons in the identity registry",
	})

	SearchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "medialib",
		Name:      "searches_total",
		Help:      "Total number of library searches",
	})

	IndexedAssets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "medialib",
		Name:      "indexed_assets",
		Help:      "Number of assets currently in the library index",
	})

	BatchItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medialib",
		Name:      "batch_items_processed_total",
		Help:      "Total number of batch job items reaching a terminal state",
	}, []string{"operation", "outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "medialib",
		Name:      "queue_depth",
		Help:      "Number of pending enrichment tasks in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "medialib",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "medialib",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
