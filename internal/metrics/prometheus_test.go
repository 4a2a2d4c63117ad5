package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "walrus/pkg/logx"
)

var (
	_ Sink = (*Prometheus)(nil)
	_ Sink = Noop{}
)

func TestPrometheusCounters(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, logx.Nop())

	p.TimerScheduled("reminder")
	p.TimerScheduled("reminder")
	p.TimerFired("reminder")
	p.SinkError("reminder")
	p.DecodeError("broken")
	p.TimerPreempted()
	p.LoopRestarted()
	p.CommandRun("remind")
	p.UpdateReceived("message")

	assert.InDelta(t, 2, testutil.ToFloat64(p.scheduled.WithLabelValues("reminder")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.fired.WithLabelValues("reminder")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.sinkErrors.WithLabelValues("reminder")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.decodeErrors.WithLabelValues("broken")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.preemptions), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.restarts), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.commands.WithLabelValues("remind")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.updates.WithLabelValues("message")), 0)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestPrometheusWaitGauge(t *testing.T) {
	t.Parallel()
	p := NewPrometheus(prometheus.NewRegistry(), logx.Nop())

	p.WaitStarted(90 * time.Second)
	assert.InDelta(t, 90, testutil.ToFloat64(p.waitSeconds), 0.001)

	p.WaitStarted(-time.Second)
	assert.InDelta(t, 0, testutil.ToFloat64(p.waitSeconds), 0)
}

func TestPrometheusDuplicateRegistrationIsTolerated(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	_ = NewPrometheus(reg, logx.Nop())

	assert.NotPanics(t, func() {
		p := NewPrometheus(reg, logx.Nop())
		p.TimerFired("x")
	})
}

func TestNilRegistry(t *testing.T) {
	t.Parallel()
	p := NewPrometheus(nil, logx.Logger{})
	assert.NotPanics(t, func() { p.TimerScheduled("x") })
}
