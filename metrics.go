// metrics.go
package main

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sigview/types"
)

// Pipeline counters
var (
	signaturesAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sigview_signatures_applied_total",
			Help: "Total number of signature databases matched against the binary",
		},
	)

	signatureParseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sigview_signature_parse_failures_total",
			Help: "Total number of signature databases that failed to parse",
		},
	)

	functionsScannedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sigview_functions_scanned_total",
			Help: "Total number of eligible functions scanned",
		},
	)

	functionsRenamedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigview_functions_renamed_total",
			Help: "Total number of functions renamed, by library",
		},
		[]string{"library"},
	)

	hitsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigview_hits_dropped_total",
			Help: "Total number of match hits dropped, by reason",
		},
		[]string{"reason"},
	)
)

// Cache and resource metrics
var (
	cacheStats = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sigview_cache_stats",
			Help: "Byte-window cache statistics including size, hit ratio, memory usage",
		},
		[]string{"type"}, // size, hit_ratio, evictions, keys_added, cost_added, cost_evicted
	)

	resourceUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sigview_resource_usage",
			Help: "Current resource utilization stats",
		},
		[]string{"resource"}, // memory, goroutines
	)
)

// recordRename feeds the per-library rename counter from a pipeline event.
func recordRename(ev types.RenameEvent) {
	functionsRenamedTotal.WithLabelValues(ev.Library).Inc()
}

// recordRunStats pushes a finished run's counters into prometheus.
func recordRunStats(stats types.RunStats) {
	signaturesAppliedTotal.Add(float64(stats.SignaturesApplied))
	signatureParseFailures.Add(float64(stats.ParseFailures))
	functionsScannedTotal.Add(float64(stats.FunctionsScanned))
	hitsDroppedTotal.WithLabelValues("unknown_address").Add(float64(stats.DroppedUnknownAddr))
	hitsDroppedTotal.WithLabelValues("already_named").Add(float64(stats.DroppedNamed))
}

// serveMetrics exposes /metrics on addr until the context is cancelled.
func serveMetrics(ctx context.Context, addr string, logger *Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warning("metrics", "Metrics server stopped: %v", err)
		}
	}()
}

// MetricsCollector handles periodic collection of system metrics
type MetricsCollector struct {
	cache *ByteCache
	ctx   context.Context
	stop  context.CancelFunc
}

func NewMetricsCollector(cache *ByteCache) *MetricsCollector {
	ctx, stop := context.WithCancel(context.Background())
	return &MetricsCollector{
		cache: cache,
		ctx:   ctx,
		stop:  stop,
	}
}

func (mc *MetricsCollector) Start() {
	go mc.collect()
}

func (mc *MetricsCollector) Stop() {
	mc.stop()
}

func (mc *MetricsCollector) collect() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-mc.ctx.Done():
			return
		case <-ticker.C:
			mc.updateMetrics()
		}
	}
}

func (mc *MetricsCollector) updateMetrics() {
	if mc.cache != nil {
		if metrics := mc.cache.GetMetrics(); metrics != nil {
			cacheStats.WithLabelValues("size").Set(float64(metrics.KeysAdded() - metrics.KeysEvicted()))
			cacheStats.WithLabelValues("max_size").Set(float64(mc.cache.MaxSize()))
			cacheStats.WithLabelValues("hit_ratio").Set(metrics.Ratio() * 100)
			cacheStats.WithLabelValues("evictions").Set(float64(metrics.KeysEvicted()))
			cacheStats.WithLabelValues("keys_added").Set(float64(metrics.KeysAdded()))
			cacheStats.WithLabelValues("cost_added").Set(float64(metrics.CostAdded()))
			cacheStats.WithLabelValues("cost_evicted").Set(float64(metrics.CostEvicted()))
		}
	}

	stats := runtime.MemStats{}
	runtime.ReadMemStats(&stats)
	resourceUsage.WithLabelValues("memory_bytes").Set(float64(stats.Alloc))
	resourceUsage.WithLabelValues("goroutines").Set(float64(runtime.NumGoroutine()))
}
