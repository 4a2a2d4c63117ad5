package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	logx "walrus/pkg/logx"
)

const namespace = "walrus"

// Prometheus implements Sink with client_golang collectors.
// Registration failures are logged and the affected collector keeps working unregistered.
type Prometheus struct {
	log logx.Logger

	scheduled   *prometheus.CounterVec
	fired       *prometheus.CounterVec
	preemptions prometheus.Counter
	waitSeconds prometheus.Gauge

	sinkErrors   *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	restarts     prometheus.Counter

	commands *prometheus.CounterVec
	updates  *prometheus.CounterVec
}

// NewPrometheus builds the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer, log logx.Logger) *Prometheus {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Prometheus{log: log}
	p.initTimerMetrics(reg)
	p.initChatMetrics(reg)
	return p
}

func (p *Prometheus) initTimerMetrics(reg prometheus.Registerer) {
	p.scheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "timers", Name: "scheduled_total",
		Help: "Timers persisted through ScheduleEvent.",
	}, []string{"kind"})
	p.fired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "timers", Name: "fired_total",
		Help: "Timers deleted and handed to the completion sink.",
	}, []string{"kind"})
	p.preemptions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "timers", Name: "preemptions_total",
		Help: "Early wakes of the dispatch loop caused by a sooner timer.",
	})
	p.waitSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "timers", Name: "wait_seconds",
		Help: "Length of the sleep the dispatch loop most recently entered.",
	})
	p.sinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "timers", Name: "sink_errors_total",
		Help: "Completion sink invocations that returned an error or panicked.",
	}, []string{"kind"})
	p.decodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "timers", Name: "decode_errors_total",
		Help: "Timers dropped because their payload could not be decoded.",
	}, []string{"kind"})
	p.restarts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "timers", Name: "loop_restarts_total",
		Help: "Dispatch loop restarts after transient storage faults.",
	})

	p.register(reg, p.scheduled, "timers_scheduled_total")
	p.register(reg, p.fired, "timers_fired_total")
	p.register(reg, p.preemptions, "timers_preemptions_total")
	p.register(reg, p.waitSeconds, "timers_wait_seconds")
	p.register(reg, p.sinkErrors, "timers_sink_errors_total")
	p.register(reg, p.decodeErrors, "timers_decode_errors_total")
	p.register(reg, p.restarts, "timers_loop_restarts_total")
}

func (p *Prometheus) initChatMetrics(reg prometheus.Registerer) {
	p.commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "bot", Name: "commands_total",
		Help: "Commands dispatched by name.",
	}, []string{"command"})
	p.updates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "bot", Name: "updates_total",
		Help: "Transport updates received by kind.",
	}, []string{"kind"})

	p.register(reg, p.commands, "bot_commands_total")
	p.register(reg, p.updates, "bot_updates_total")
}

func (p *Prometheus) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if reg == nil {
		return
	}
	if err := reg.Register(c); err != nil {
		p.log.Warn("metrics: failed to register collector", logx.String("name", name), logx.Err(err))
	}
}

func (p *Prometheus) TimerScheduled(kind string) { p.scheduled.WithLabelValues(kind).Inc() }
func (p *Prometheus) TimerFired(kind string)     { p.fired.WithLabelValues(kind).Inc() }
func (p *Prometheus) TimerPreempted()            { p.preemptions.Inc() }

func (p *Prometheus) WaitStarted(d time.Duration) {
	p.waitSeconds.Set(max(d, 0).Seconds())
}

func (p *Prometheus) SinkError(kind string)   { p.sinkErrors.WithLabelValues(kind).Inc() }
func (p *Prometheus) DecodeError(kind string) { p.decodeErrors.WithLabelValues(kind).Inc() }
func (p *Prometheus) LoopRestarted()          { p.restarts.Inc() }

func (p *Prometheus) CommandRun(name string)     { p.commands.WithLabelValues(name).Inc() }
func (p *Prometheus) UpdateReceived(kind string) { p.updates.WithLabelValues(kind).Inc() }
