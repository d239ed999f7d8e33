package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Prometheus implements metrics.Recorder on its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	activeSessions   prometheus.Gauge
	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	audioBytes       prometheus.Counter
	audioChunks      prometheus.Counter
	events           *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		registry: reg,
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nlscribe_active_sessions",
			Help: "Current number of running transcription sessions",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nlscribe_sessions_started_total",
			Help: "Total number of transcription sessions started",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nlscribe_sessions_finished_total",
			Help: "Total number of transcription sessions finished, by final status",
		}, []string{"status"}),
		audioBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nlscribe_audio_sent_bytes_total",
			Help: "Total PCM bytes sent to the gateway",
		}),
		audioChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nlscribe_audio_chunks_sent_total",
			Help: "Total audio frames sent to the gateway",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nlscribe_events_received_total",
			Help: "Total gateway events delivered, by kind",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.activeSessions,
		p.sessionsStarted,
		p.sessionsFinished,
		p.audioBytes,
		p.audioChunks,
		p.events,
	)
	return p
}

func (p *Prometheus) SessionStarted() {
	p.sessionsStarted.Inc()
	p.activeSessions.Inc()
}

func (p *Prometheus) SessionFinished(status string) {
	p.activeSessions.Dec()
	p.sessionsFinished.WithLabelValues(status).Inc()
}

func (p *Prometheus) AudioSent(bytes int) {
	p.audioChunks.Inc()
	p.audioBytes.Add(float64(bytes))
}

func (p *Prometheus) EventReceived(kind string) {
	p.events.WithLabelValues(kind).Inc()
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (p *Prometheus) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
