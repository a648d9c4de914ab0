// Package metrics exposes cdba's runtime counters over Prometheus,
// grounded on the teacher's internal/metrics package (same promauto
// registration style, same /metrics + /ready HTTP surface).
package metrics

import (
	"net/http"
	"sync"

	"github.com/2lambda123/linux-msm-cdba/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdba_sessions_total",
		Help: "Total client sessions accepted by the server.",
	})
	FramesRx = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdba_frames_rx_total",
		Help: "Total protocol frames decoded, by message type.",
	}, []string{"type"})
	FramesTx = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdba_frames_tx_total",
		Help: "Total protocol frames written, by message type.",
	}, []string{"type"})
	ConsoleBytesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdba_console_bytes_total",
		Help: "Total console bytes relayed between operator and board.",
	})
	FastbootBytesTransferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdba_fastboot_bytes_total",
		Help: "Total boot-image bytes streamed to boards via fastboot.",
	})
	PowerCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdba_power_cycles_total",
		Help: "Total power-cycle retries issued by the client timeout engine.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdba_malformed_frames_total",
		Help: "Total frames rejected as malformed (oversized length, truncated).",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cdba_build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdba_errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// IncError increments the error counter for where (e.g. "device", "transport").
func IncError(where string) { Errors.WithLabelValues(where).Inc() }

// IncFrameRx increments the per-type received-frame counter.
func IncFrameRx(typ string) { FramesRx.WithLabelValues(typ).Inc() }

// IncFrameTx increments the per-type sent-frame counter.
func IncFrameTx(typ string) { FramesTx.WithLabelValues(typ).Inc() }

// AddConsoleBytes records n relayed console bytes.
func AddConsoleBytes(n int) { ConsoleBytesRelayed.Add(float64(n)) }

// AddFastbootBytes records n bytes streamed to a board's bootloader.
func AddFastbootBytes(n int) { FastbootBytesTransferred.Add(float64(n)) }

// IncPowerCycle records one timeout/power-off-triggered retry.
func IncPowerCycle() { PowerCycles.Inc() }

// IncMalformed records one rejected malformed frame.
func IncMalformed() { MalformedFrames.Inc() }

// InitBuildInfo sets the build info gauge (call once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
}

// SetReadinessFunc registers a function used by /ready.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function, defaulting to
// true if none is registered yet.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// StartHTTP serves Prometheus metrics and a readiness probe.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}
