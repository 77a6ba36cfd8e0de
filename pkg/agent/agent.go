// Package agent 采集协调核心：维护有序的采集器注册表，按固定周期轮询所有采集器，
// 把每个周期的批次发布到 metrics 主题，失败的周期发布到 error 主题。
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/telemetry-agent/pkg/collector"
	"github.com/telemetry-agent/pkg/config"
	"github.com/telemetry-agent/pkg/event"
	"github.com/telemetry-agent/pkg/logger"
	"github.com/telemetry-agent/pkg/metric"
	"github.com/telemetry-agent/pkg/monitor"
)

var (
	// ErrDuplicateCollector 同名采集器已注册
	ErrDuplicateCollector = errors.New("Collector already exists")
	// ErrAgentRunning 运行期间不允许修改注册表
	ErrAgentRunning = errors.New("cannot register collector while agent is running")
	// ErrInvalidCollector 名称为空或采集器为 nil
	ErrInvalidCollector = errors.New("collector name and instance are required")
)

// Option Agent 选项
type Option func(*Agent)

// WithLogger 指定 logger
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.log = l
		}
	}
}

// WithClock 指定时钟（测试用 fake clock 驱动周期）
func WithClock(c clockwork.Clock) Option {
	return func(a *Agent) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithMetricFactory 指定自监控指标工厂
func WithMetricFactory(f *monitor.MetricFactory) Option {
	return func(a *Agent) {
		if f != nil {
			a.factory = f
		}
	}
}

type entry struct {
	name string
	c    collector.Collector
}

// Agent 采集协调器
type Agent struct {
	id      string
	cfg     config.AgentConfig
	log     *zap.Logger
	clock   clockwork.Clock
	factory *monitor.MetricFactory
	metrics *monitor.AgentMetrics

	lifecycle sync.Mutex // 串行化 Register/Start/Stop

	mu         sync.RWMutex
	entries    []entry
	registered map[string]struct{}

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	metricsTopic *event.Topic[[]metric.Metric]
	errorTopic   *event.Topic[error]
}

// New 创建 Agent，配置已由 config.NewAgentConfig 校验
func New(cfg config.AgentConfig, opts ...Option) *Agent {
	a := &Agent{
		id:         uuid.NewString(),
		cfg:        cfg,
		log:        logger.Named("agent"),
		clock:      clockwork.NewRealClock(),
		registered: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.factory == nil {
		a.factory = monitor.NewPrivateFactory()
	}
	a.metrics = a.factory.AgentMetrics()
	a.log = a.log.With(zap.String("agent", a.id))
	a.metricsTopic = event.NewTopic("metrics",
		event.WithLogger[[]metric.Metric](a.log),
		event.WithCopier(metric.CloneBatch))
	a.errorTopic = event.NewTopic("error", event.WithLogger[error](a.log))
	return a
}

// ID 实例 ID
func (a *Agent) ID() string { return a.id }

// Config 不可变配置
func (a *Agent) Config() config.AgentConfig { return a.cfg }

// IsRunning 是否在运行
func (a *Agent) IsRunning() bool { return a.running.Load() }

// Collectors 按注册顺序返回采集器名称
func (a *Agent) Collectors() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.name
	}
	return names
}

// RegisterCollector 注册采集器，注册顺序即采集顺序
func (a *Agent) RegisterCollector(name string, c collector.Collector) error {
	if name == "" || c == nil {
		return ErrInvalidCollector
	}
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if a.running.Load() {
		return ErrAgentRunning
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.registered[name]; ok {
		return ErrDuplicateCollector
	}
	a.registered[name] = struct{}{}
	a.entries = append(a.entries, entry{name: name, c: c})
	a.log.Debug("collector registered", zap.String("collector", name))
	return nil
}

// OnMetrics 订阅每个周期的批次；处理函数在采集 goroutine 上同步执行，不能调用 Stop
func (a *Agent) OnMetrics(fn func([]metric.Metric)) event.Subscription {
	return a.metricsTopic.Subscribe(fn)
}

// OnError 订阅周期失败
func (a *Agent) OnError(fn func(error)) event.Subscription {
	return a.errorTopic.Subscribe(fn)
}

// Start 按注册顺序启动所有采集器并开始周期采集。
// 任一采集器启动失败即返回，Agent 保持未运行，已启动的采集器不回滚。
func (a *Agent) Start(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if a.running.Load() {
		return nil
	}
	if !a.cfg.Enabled() {
		a.log.Info("agent disabled, start skipped")
		return nil
	}

	entries := a.snapshot()
	for _, e := range entries {
		if err := e.c.Start(ctx); err != nil {
			a.log.Error("collector start failed", zap.String("collector", e.name), zap.Error(err))
			return fmt.Errorf("start collector %q: %w", e.name, err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	ticker := a.clock.NewTicker(a.cfg.SampleInterval())
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running.Store(true)
	a.metrics.Running.Set(1)
	go a.loop(loopCtx, ticker, entries, a.done)

	a.log.Info("agent started",
		zap.Strings("collectors", names(entries)),
		zap.Duration("sampleInterval", a.cfg.SampleInterval()))
	return nil
}

// Stop 停止周期并等待进行中的周期结束，然后按注册顺序停止所有采集器。
// 单个采集器停止失败不影响其它采集器，所有错误合并返回。
func (a *Agent) Stop(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if !a.running.Load() {
		return nil
	}

	a.cancel()
	<-a.done
	a.cancel, a.done = nil, nil

	var errs error
	for _, e := range a.snapshot() {
		if err := e.c.Stop(ctx); err != nil {
			a.log.Warn("collector stop failed", zap.String("collector", e.name), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("stop collector %q: %w", e.name, err))
		}
	}
	a.running.Store(false)
	a.metrics.Running.Set(0)
	a.log.Info("agent stopped")
	return errs
}

func (a *Agent) loop(ctx context.Context, ticker clockwork.Ticker, entries []entry, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			// tick 与取消同时就绪时不再开始新周期
			if ctx.Err() != nil {
				return
			}
			a.runCycle(context.WithoutCancel(ctx), entries)
		}
	}
}

// runCycle 依次采集并拼接；遇到第一个失败即放弃本周期
func (a *Agent) runCycle(ctx context.Context, entries []entry) {
	batch := make([]metric.Metric, 0)
	for _, e := range entries {
		start := a.clock.Now()
		ms, err := e.c.Collect(ctx)
		a.metrics.CollectDuration.WithLabelValues(e.name).Observe(a.clock.Since(start).Seconds())
		if err != nil {
			a.metrics.CollectErrors.WithLabelValues(e.name).Inc()
			a.metrics.Cycles.WithLabelValues(monitor.ResultError).Inc()
			cycleErr := fmt.Errorf("collector %q: %w", e.name, err)
			if a.errorTopic.Publish(cycleErr) == 0 {
				a.log.Warn("collection cycle failed", zap.Error(cycleErr))
			}
			return
		}
		batch = append(batch, ms...)
	}

	a.metrics.Cycles.WithLabelValues(monitor.ResultOK).Inc()
	a.metrics.LastBatchSize.Set(float64(len(batch)))
	a.metricsTopic.Publish(batch)
	a.log.Debug("collection cycle published", zap.Int("metrics", len(batch)))
}

func (a *Agent) snapshot() []entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]entry, len(a.entries))
	copy(out, a.entries)
	return out
}

func names(entries []entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}
