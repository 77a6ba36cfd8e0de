package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/telemetry-agent/pkg/collector"
	"github.com/telemetry-agent/pkg/config"
	"github.com/telemetry-agent/pkg/metric"
	"github.com/telemetry-agent/pkg/monitor"
)

const interval = time.Second

// recorder 记录所有采集器的调用顺序
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeCollector struct {
	name     string
	rec      *recorder
	startErr error
	stopErr  error

	mu        sync.Mutex
	collectFn func(n int) ([]metric.Metric, error)
	collects  int
}

func (f *fakeCollector) Start(context.Context) error {
	f.rec.add("start:" + f.name)
	return f.startErr
}

func (f *fakeCollector) Stop(context.Context) error {
	f.rec.add("stop:" + f.name)
	return f.stopErr
}

func (f *fakeCollector) Collect(context.Context) ([]metric.Metric, error) {
	f.mu.Lock()
	f.collects++
	n, fn := f.collects, f.collectFn
	f.mu.Unlock()
	f.rec.add("collect:" + f.name)
	if fn != nil {
		return fn(n)
	}
	return []metric.Metric{metric.New(f.name+".value", metric.Int(n), metric.TypeCPU)}, nil
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	clock   *clockwork.FakeClock
	reg     *prometheus.Registry
	agent   *Agent
	rec     *recorder
	batches chan []metric.Metric
	errs    chan error
}

func newHarness(t *testing.T, mutate func(*config.AgentOptions)) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	opts := config.DefaultAgentOptions()
	opts.SampleInterval = interval
	if mutate != nil {
		mutate(&opts)
	}
	cfg, err := config.NewAgentConfig(opts)
	require.NoError(t, err)

	h := &harness{
		t:       t,
		ctx:     ctx,
		clock:   clockwork.NewFakeClock(),
		reg:     prometheus.NewRegistry(),
		rec:     &recorder{},
		batches: make(chan []metric.Metric, 16),
		errs:    make(chan error, 16),
	}
	h.agent = New(cfg,
		WithClock(h.clock),
		WithMetricFactory(monitor.NewMetricFactory(monitor.NewPromRegistry(h.reg))))
	h.agent.OnMetrics(func(b []metric.Metric) { h.batches <- b })
	h.agent.OnError(func(err error) { h.errs <- err })
	t.Cleanup(func() { _ = h.agent.Stop(context.Background()) })
	return h
}

func (h *harness) add(name string) *fakeCollector {
	h.t.Helper()
	c := &fakeCollector{name: name, rec: h.rec}
	require.NoError(h.t, h.agent.RegisterCollector(name, c))
	return c
}

// tick 推进一个周期
func (h *harness) tick() {
	h.t.Helper()
	require.NoError(h.t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(interval)
}

func (h *harness) nextBatch() []metric.Metric {
	h.t.Helper()
	select {
	case b := <-h.batches:
		return b
	case err := <-h.errs:
		h.t.Fatalf("unexpected cycle error: %v", err)
	case <-h.ctx.Done():
		h.t.Fatal("timed out waiting for batch")
	}
	return nil
}

func (h *harness) nextError() error {
	h.t.Helper()
	select {
	case err := <-h.errs:
		return err
	case b := <-h.batches:
		h.t.Fatalf("unexpected batch of %d metrics", len(b))
	case <-h.ctx.Done():
		h.t.Fatal("timed out waiting for error")
	}
	return nil
}

func batchNames(b []metric.Metric) []string {
	out := make([]string, len(b))
	for i, m := range b {
		out[i] = m.Name()
	}
	return out
}

func TestRegisterCollectorRejectsDuplicates(t *testing.T) {
	h := newHarness(t, nil)
	first := h.add("memory")

	err := h.agent.RegisterCollector("memory", &fakeCollector{name: "other", rec: h.rec})
	require.ErrorIs(t, err, ErrDuplicateCollector)
	assert.EqualError(t, err, "Collector already exists")
	assert.Equal(t, []string{"memory"}, h.agent.Collectors())

	require.NoError(t, h.agent.Start(h.ctx))
	h.tick()
	assert.Equal(t, []string{"memory.value"}, batchNames(h.nextBatch()))
	assert.Equal(t, 1, first.collects)
}

func TestRegisterCollectorValidatesInput(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.agent.RegisterCollector("", &fakeCollector{rec: h.rec}), ErrInvalidCollector)
	assert.ErrorIs(t, h.agent.RegisterCollector("cpu", nil), ErrInvalidCollector)
}

func TestRegisterWhileRunning(t *testing.T) {
	h := newHarness(t, nil)
	h.add("a")
	require.NoError(t, h.agent.Start(h.ctx))

	err := h.agent.RegisterCollector("b", &fakeCollector{name: "b", rec: h.rec})
	assert.ErrorIs(t, err, ErrAgentRunning)

	require.NoError(t, h.agent.Stop(h.ctx))
	assert.NoError(t, h.agent.RegisterCollector("b", &fakeCollector{name: "b", rec: h.rec}))
}

func TestStartFailureLeavesAgentStopped(t *testing.T) {
	h := newHarness(t, nil)
	h.add("a")
	b := h.add("b")
	b.startErr = errors.New("no permission")
	h.add("c")

	err := h.agent.Start(h.ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, b.startErr)
	assert.Contains(t, err.Error(), `"b"`)
	assert.False(t, h.agent.IsRunning())

	// 已启动的 a 不回滚，c 从未启动
	assert.Equal(t, []string{"start:a", "start:b"}, h.rec.all())

	h.clock.Advance(3 * interval)
	assert.Empty(t, h.batches)
}

func TestCycleConcatenatesInRegistrationOrder(t *testing.T) {
	h := newHarness(t, nil)
	h.add("cpu")
	h.add("memory")
	h.add("eventloop")

	require.NoError(t, h.agent.Start(h.ctx))
	require.NoError(t, h.agent.Start(h.ctx))
	assert.True(t, h.agent.IsRunning())
	assert.Equal(t, []string{"start:cpu", "start:memory", "start:eventloop"}, h.rec.all())

	h.tick()
	assert.Equal(t, []string{"cpu.value", "memory.value", "eventloop.value"}, batchNames(h.nextBatch()))
	h.tick()
	b := h.nextBatch()
	v, _ := b[0].Value().Float()
	assert.Equal(t, 2.0, v)
}

func TestEmptyBatchIsPublished(t *testing.T) {
	h := newHarness(t, nil)
	h.add("empty").collectFn = func(int) ([]metric.Metric, error) { return nil, nil }

	require.NoError(t, h.agent.Start(h.ctx))
	h.tick()
	b := h.nextBatch()
	assert.NotNil(t, b)
	assert.Empty(t, b)
}

func TestCycleFailureIsIsolated(t *testing.T) {
	h := newHarness(t, nil)
	h.add("a")
	boom := errors.New("boom")
	h.add("b").collectFn = func(n int) ([]metric.Metric, error) {
		if n == 1 {
			return nil, boom
		}
		return []metric.Metric{metric.New("b.value", metric.Number(1), metric.TypeMemory)}, nil
	}
	c := h.add("c")

	require.NoError(t, h.agent.Start(h.ctx))
	h.tick()
	err := h.nextError()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `"b"`)
	c.mu.Lock()
	assert.Equal(t, 0, c.collects)
	c.mu.Unlock()
	assert.True(t, h.agent.IsRunning())

	h.tick()
	assert.Equal(t, []string{"a.value", "b.value", "c.value"}, batchNames(h.nextBatch()))

	assert.Equal(t, 1.0, testutil.ToFloat64(h.agent.metrics.Cycles.WithLabelValues(monitor.ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.agent.metrics.Cycles.WithLabelValues(monitor.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.agent.metrics.CollectErrors.WithLabelValues("b")))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.agent.metrics.LastBatchSize))
}

func TestNotStartedCollectorFailsCycle(t *testing.T) {
	h := newHarness(t, nil)
	h.add("a")
	h.add("idle").collectFn = func(int) ([]metric.Metric, error) { return nil, collector.ErrNotStarted }

	require.NoError(t, h.agent.Start(h.ctx))
	h.tick()
	err := h.nextError()
	assert.ErrorIs(t, err, collector.ErrNotStarted)
	assert.Contains(t, err.Error(), "Collector must be started before collecting metrics")

	require.NoError(t, h.agent.Stop(h.ctx))
	assert.Empty(t, h.batches)
	assert.Empty(t, h.errs)
}

func TestStopIsBestEffortAndAggregates(t *testing.T) {
	h := newHarness(t, nil)
	errA := errors.New("a stuck")
	errC := errors.New("c stuck")
	h.add("a").stopErr = errA
	h.add("b")
	h.add("c").stopErr = errC

	require.NoError(t, h.agent.Start(h.ctx))
	h.tick()
	h.nextBatch()

	err := h.agent.Stop(h.ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], errA)
	assert.False(t, h.agent.IsRunning())

	calls := h.rec.all()
	assert.Equal(t, []string{"stop:a", "stop:b", "stop:c"}, calls[len(calls)-3:])

	// 停止后不再有周期
	h.clock.Advance(5 * interval)
	assert.Empty(t, h.batches)
	assert.Empty(t, h.errs)
	assert.NoError(t, h.agent.Stop(h.ctx))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.agent.metrics.Running))
}

func TestRestartAfterStop(t *testing.T) {
	h := newHarness(t, nil)
	h.add("a")

	require.NoError(t, h.agent.Start(h.ctx))
	require.NoError(t, h.agent.Stop(h.ctx))
	require.NoError(t, h.agent.Start(h.ctx))
	h.tick()
	assert.Len(t, h.nextBatch(), 1)
}

func TestDisabledAgentDoesNotStart(t *testing.T) {
	h := newHarness(t, func(o *config.AgentOptions) { o.Enabled = false })
	h.add("a")

	require.NoError(t, h.agent.Start(h.ctx))
	assert.False(t, h.agent.IsRunning())
	assert.Empty(t, h.rec.all())
	assert.NoError(t, h.agent.Stop(h.ctx))
}

func TestSubscribersReceiveIndependentCopies(t *testing.T) {
	h := newHarness(t, nil)
	h.add("a").collectFn = func(int) ([]metric.Metric, error) {
		return []metric.Metric{metric.New("a.value", metric.Number(1), metric.TypeCPU,
			metric.WithMetadata(map[string]any{"k": "v"}))}, nil
	}
	second := make(chan []metric.Metric, 1)
	h.agent.OnMetrics(func(b []metric.Metric) { second <- b })

	require.NoError(t, h.agent.Start(h.ctx))
	h.tick()
	first := h.nextBatch()
	first[0] = metric.New("mutated", metric.Number(0), metric.TypeCPU)

	select {
	case b := <-second:
		assert.Equal(t, "a.value", b[0].Name())
	case <-h.ctx.Done():
		t.Fatal("timed out")
	}
}

func TestPanickingSubscriberDoesNotStopLoop(t *testing.T) {
	h := newHarness(t, nil)
	h.add("a")
	h.agent.OnMetrics(func([]metric.Metric) { panic("handler bug") })

	require.NoError(t, h.agent.Start(h.ctx))
	h.tick()
	h.nextBatch()
	h.tick()
	h.nextBatch()
	assert.True(t, h.agent.IsRunning())
}

func TestConfigAndIdentity(t *testing.T) {
	h := newHarness(t, func(o *config.AgentOptions) { o.MetricsBufferSize = 7 })
	assert.Equal(t, 7, h.agent.Config().MetricsBufferSize())
	assert.Equal(t, interval, h.agent.Config().SampleInterval())
	assert.Len(t, h.agent.ID(), 36)
	assert.NotEqual(t, h.agent.ID(), New(h.agent.Config()).ID())
}
