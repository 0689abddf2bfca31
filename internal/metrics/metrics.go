package metrics

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixil98/go-world/internal/protocol"
	"github.com/pixil98/go-world/internal/session"
)

const namespace = "world"

// Metrics collects server measurements on a private registry. It satisfies
// the observer interfaces of the scheduler, session pipeline, acceptor and
// world.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time

	tickDuration   prometheus.Histogram
	tickOverruns   prometheus.Counter
	playersOnline  prometheus.Gauge
	sessionsOpen   prometheus.Gauge
	sessionsClosed *prometheus.CounterVec
	framesIn       *prometheus.CounterVec
	bytesOut       prometheus.Counter
	rejected       *prometheus.CounterVec
	taskFailures   *prometheus.CounterVec
	taskSkips      *prometheus.CounterVec
	uptimeSeconds  prometheus.GaugeFunc
	heapBytes      prometheus.GaugeFunc
}

func New() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock time spent in each world tick.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .2, .4, .6, 1, 2},
		}),
		tickOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_overruns_total",
			Help:      "Ticks that took longer than the tick length.",
		}),
		playersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players_online",
			Help:      "Players currently in the world.",
		}),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Sessions currently attached, logged in or not.",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Closed sessions by reason.",
		}, []string{"reason"}),
		framesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_in_total",
			Help:      "Decoded inbound frames by opcode.",
		}, []string{"opcode"}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Bytes written to clients.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections refused before a session was created.",
		}, []string{"reason"}),
		taskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_failures_total",
			Help:      "Scheduled task invocations that failed.",
		}, []string{"task"}),
		taskSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_skipped_windows_total",
			Help:      "Scheduled task windows dropped.",
		}, []string{"task"}),
	}

	m.uptimeSeconds = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the server started.",
	}, func() float64 { return time.Since(m.startTime).Seconds() })

	m.heapBytes = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_heap_bytes",
		Help:      "Go heap memory allocated in bytes.",
	}, func() float64 {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		return float64(mem.HeapAlloc)
	})

	m.registry.MustRegister(
		m.tickDuration,
		m.tickOverruns,
		m.playersOnline,
		m.sessionsOpen,
		m.sessionsClosed,
		m.framesIn,
		m.bytesOut,
		m.rejected,
		m.taskFailures,
		m.taskSkips,
		m.uptimeSeconds,
		m.heapBytes,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TaskFailed(name string) {
	m.taskFailures.WithLabelValues(name).Inc()
}

func (m *Metrics) TaskSkipped(name string) {
	m.taskSkips.WithLabelValues(name).Inc()
}

func (m *Metrics) SessionOpened() {
	m.sessionsOpen.Inc()
}

func (m *Metrics) SessionClosed(reason error) {
	m.sessionsOpen.Dec()
	m.sessionsClosed.WithLabelValues(closeReason(reason)).Inc()
}

func (m *Metrics) FrameIn(op protocol.Opcode) {
	m.framesIn.WithLabelValues(opcodeLabel(op)).Inc()
}

func (m *Metrics) BytesOut(n int) {
	m.bytesOut.Add(float64(n))
}

func (m *Metrics) ConnectionRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) TickCompleted(elapsed time.Duration, overrun bool) {
	m.tickDuration.Observe(elapsed.Seconds())
	if overrun {
		m.tickOverruns.Inc()
	}
}

func (m *Metrics) PlayersOnline(n int) {
	m.playersOnline.Set(float64(n))
}

var closeReasons = []struct {
	err   error
	label string
}{
	{session.ErrLogout, "logout"},
	{session.ErrIdleTimeout, "idle"},
	{session.ErrDisconnected, "disconnect"},
	{session.ErrBackpressure, "backpressure"},
	{session.ErrInboundFlood, "flood"},
	{session.ErrRejected, "rejected"},
	{session.ErrOutdated, "outdated"},
	{session.ErrServerBusy, "busy"},
	{session.ErrServerShutdown, "shutdown"},
	{session.ErrHandlerPanic, "panic"},
}

func closeReason(err error) string {
	if err == nil {
		return "closed"
	}
	if protocol.IsViolation(err) {
		return "violation"
	}
	for _, r := range closeReasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "other"
}

// opcodeLabel keeps label cardinality bounded to the opcodes in use.
func opcodeLabel(op protocol.Opcode) string {
	switch op {
	case protocol.OpKeepAlive:
		return "keepalive"
	case protocol.OpLogout:
		return "logout"
	case protocol.OpWalk:
		return "walk"
	case protocol.OpChat:
		return "chat"
	case protocol.OpCommand:
		return "command"
	case protocol.OpHandshake:
		return "handshake"
	case protocol.OpWorldLogin:
		return "world_login"
	case protocol.OpLobbyLogin:
		return "lobby_login"
	default:
		return "other"
	}
}
