package metrics

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logx "gozo/pkg/logx"
)

// Config controls the optional metrics/health HTTP server. Bound to
// localhost by default; this is meant for sidecar scraping, not public
// exposure.
type Config struct {
	Enabled bool
	Addr    string // default "127.0.0.1:8222"
}

// Collector holds the counters/gauges the scheduler and gateway report
// into. A nil *Collector is safe to call methods on — every method is a
// no-op — so callers don't need to branch on whether metrics are enabled.
type Collector struct {
	admitted    prometheus.Counter
	cancelled   prometheus.Counter
	fired       prometheus.Counter
	parseErrors prometheus.Counter
	storeErrors prometheus.Counter
	emitErrors  prometheus.Counter
	pending     prometheus.Gauge
}

// NewCollector registers a fresh set of metrics on reg. Pass nil to use
// the default Prometheus registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		admitted:    f.NewCounter(prometheus.CounterOpts{Name: "gozo_schedules_admitted_total", Help: "Schedules admitted (scheduled or overwritten)."}),
		cancelled:   f.NewCounter(prometheus.CounterOpts{Name: "gozo_schedules_cancelled_total", Help: "Schedules cancelled by id."}),
		fired:       f.NewCounter(prometheus.CounterOpts{Name: "gozo_schedules_fired_total", Help: "Schedules fired (published to their reply subject)."}),
		parseErrors: f.NewCounter(prometheus.CounterOpts{Name: "gozo_parse_errors_total", Help: "Inbound requests dropped for malformed headers."}),
		storeErrors: f.NewCounter(prometheus.CounterOpts{Name: "gozo_store_errors_total", Help: "Durable Store operation failures."}),
		emitErrors:  f.NewCounter(prometheus.CounterOpts{Name: "gozo_emit_errors_total", Help: "Gateway publish failures at fire time."}),
		pending:     f.NewGauge(prometheus.GaugeOpts{Name: "gozo_schedules_pending", Help: "Live schedules currently in the heap."}),
	}
}

func (c *Collector) Admitted() {
	if c != nil {
		c.admitted.Inc()
	}
}

func (c *Collector) Cancelled() {
	if c != nil {
		c.cancelled.Inc()
	}
}

func (c *Collector) Fired() {
	if c != nil {
		c.fired.Inc()
	}
}

func (c *Collector) ParseError() {
	if c != nil {
		c.parseErrors.Inc()
	}
}

func (c *Collector) StoreError() {
	if c != nil {
		c.storeErrors.Inc()
	}
}

func (c *Collector) EmitError() {
	if c != nil {
		c.emitErrors.Inc()
	}
}

func (c *Collector) SetPending(n int) {
	if c != nil {
		c.pending.Set(float64(n))
	}
}

// Service runs the /metrics + /healthz HTTP server: listen, serve, and a
// graceful Shutdown on Stop. It is a single non-restarting server — if it
// dies, it stays down (Start is a no-op until Stop has run), since it's
// ambient observability, not the service itself.
type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	srv *http.Server
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8222"
	}
	return &Service{cfg: cfg, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.srv != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.srv = srv

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Warn("metrics server exited", logx.Err(err))
		}
	}()
	s.log.Info("metrics: listening", logx.String("addr", s.cfg.Addr))
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
