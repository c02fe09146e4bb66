package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"gozo/internal/metrics"
	logx "gozo/pkg/logx"
)

// Gateway is the Bus Gateway. It owns the one subscription to the request
// subject and exposes Publish as the scheduler.Emitter the Scheduler Core
// calls at fire time. It holds no schedule state of its own.
type Gateway struct {
	log logx.Logger
	nc  *nats.Conn
	cfg Config

	sched Admitter
	sub   *nats.Subscription

	// parseWarn throttles the "dropped malformed message" log line so a
	// misbehaving publisher can't flood the log at line rate.
	parseWarn *logx.Sampler

	metrics *metrics.Collector
}

// SetMetrics attaches an optional metrics collector.
func (g *Gateway) SetMetrics(c *metrics.Collector) {
	g.metrics = c
}

// New builds a Gateway. nc must already be connected.
func New(nc *nats.Conn, cfg Config, sched Admitter, log logx.Logger) *Gateway {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Subject) == "" {
		cfg.Subject = "gozo"
	}
	return &Gateway{
		log:       log,
		nc:        nc,
		cfg:       cfg,
		sched:     sched,
		parseWarn: logx.NewSampler(5),
	}
}

// Start subscribes to the request subject. Each message is admitted
// synchronously on the NATS client's delivery goroutine; admission itself
// is fast except for its Store.Put call, so this does not become a
// bottleneck for the bus client's dispatch loop under normal load.
func (g *Gateway) Start(ctx context.Context) error {
	sub, err := g.nc.Subscribe(g.cfg.Subject, func(msg *nats.Msg) {
		g.handle(ctx, msg)
	})
	if err != nil {
		return err
	}
	g.sub = sub
	g.log.Info("gateway: subscribed", logx.String("subject", g.cfg.Subject))
	return nil
}

// Stop unsubscribes so no further admissions occur. It does not touch
// in-flight Scheduler state; draining pending schedules is the
// Supervisor's job.
func (g *Gateway) Stop() error {
	if g.sub == nil {
		return nil
	}
	err := g.sub.Unsubscribe()
	g.sub = nil
	return err
}

func (g *Gateway) handle(ctx context.Context, msg *nats.Msg) {
	headers := map[string][]string(nil)
	if msg.Header != nil {
		headers = map[string][]string(msg.Header)
	}
	parsed := parseInbound(msg.Subject, msg.Reply, msg.Data, headers, now)

	switch {
	case parsed.err != nil:
		g.metrics.ParseError()
		if g.parseWarn.Allow() {
			g.log.Warn("gateway: dropping malformed request", logx.Err(parsed.err))
		}
	case parsed.cancel != nil:
		if err := g.sched.Cancel(ctx, *parsed.cancel); err != nil {
			g.log.Warn("gateway: cancel failed", logx.String("id", parsed.cancel.ID), logx.Err(err))
		}
	case parsed.schedule != nil:
		if err := g.sched.Admit(ctx, *parsed.schedule); err != nil {
			g.log.Warn("gateway: admit failed", logx.String("id", parsed.schedule.ID), logx.Err(err))
		}
	}
}

// Publish implements scheduler.Emitter. It strips nothing from headers
// (they were already stripped of the control headers at admission time),
// adds Gozo-Reply: Yes, and re-attaches Gozo-Id when the schedule was
// durable.
func (g *Gateway) Publish(id, replySubject string, payload []byte, headers map[string]string) error {
	out := nats.Header{}
	for k, v := range headers {
		out.Set(k, v)
	}
	out.Set(HeaderReply, "Yes")
	if id != "" {
		out.Set(HeaderID, id)
	}
	return g.nc.PublishMsg(&nats.Msg{
		Subject: replySubject,
		Header:  out,
		Data:    payload,
	})
}

var now = func() int64 { return time.Now().Unix() }
