package collector

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/telemetry-agent/pkg/config"
	"github.com/telemetry-agent/pkg/logger"
	"github.com/telemetry-agent/pkg/metric"
)

// DefaultProbeResolution 调度延迟探针的定时间隔
const DefaultProbeResolution = 10 * time.Millisecond

// lagWindow 两次 Collect 之间的延迟统计
type lagWindow struct {
	samples int
	sum     time.Duration
	max     time.Duration
	last    time.Duration
	blocked int // 超过阈值的次数
}

// EventLoopCollector 调度延迟采集器
//
// 后台探针按固定间隔反复定时，记录每次唤醒比预期晚了多少，
// 反映 Go 调度器的繁忙程度（GC、CPU 饱和、长时间占用 P 的 goroutine）。
type EventLoopCollector struct {
	opts       options
	threshold  time.Duration
	resolution time.Duration

	mu      sync.Mutex
	running bool
	gen     uint64 // 每次 Start 递增，旧探针的样本按代号丢弃
	window  lagWindow
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEventLoopCollector 创建调度延迟采集器，阈值取 EventLoopThreshold
func NewEventLoopCollector(cfg config.AgentConfig, opts ...Option) *EventLoopCollector {
	return &EventLoopCollector{
		opts:       buildOptions(logger.Named("collector.eventloop"), opts),
		threshold:  cfg.EventLoopThreshold(),
		resolution: DefaultProbeResolution,
	}
}

// SetResolution 修改探针间隔，仅在未启动时生效
func (c *EventLoopCollector) SetResolution(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running && d > 0 {
		c.resolution = d
	}
}

// Start 启动探针 goroutine
func (c *EventLoopCollector) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.window = lagWindow{}
	c.running = true
	c.gen++
	go c.probe(ctx, c.gen, c.resolution, c.done)
	c.opts.log.Debug("eventloop probe started",
		zap.Duration("resolution", c.resolution), zap.Duration("threshold", c.threshold))
	return nil
}

// Stop 停止探针并等待其退出
func (c *EventLoopCollector) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	c.window = lagWindow{}
	c.mu.Unlock()
	return nil
}

// Collect 返回本窗口的延迟统计并重置窗口
func (c *EventLoopCollector) Collect(context.Context) ([]metric.Metric, error) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	w := c.window
	c.window = lagWindow{}
	c.mu.Unlock()

	var mean time.Duration
	if w.samples > 0 {
		mean = w.sum / time.Duration(w.samples)
	}
	at := metric.At(c.opts.clock.Now())
	ms := map[string]any{"unit": "ms"}
	return []metric.Metric{
		metric.New("eventloop.lag", metric.Number(millis(w.last)), metric.TypeEventLoop, at, metric.WithMetadata(ms)),
		metric.New("eventloop.lag_mean", metric.Number(millis(mean)), metric.TypeEventLoop, at, metric.WithMetadata(ms)),
		metric.New("eventloop.lag_max", metric.Number(millis(w.max)), metric.TypeEventLoop, at, metric.WithMetadata(ms)),
		metric.New("eventloop.blocked", metric.Int(w.blocked), metric.TypeEventLoop, at,
			metric.WithMetadata(map[string]any{"threshold_ms": millis(c.threshold)})),
		metric.New("eventloop.samples", metric.Int(w.samples), metric.TypeEventLoop, at),
		metric.New("eventloop.goroutines", metric.Int(runtime.NumGoroutine()), metric.TypeEventLoop, at),
	}, nil
}

func (c *EventLoopCollector) probe(ctx context.Context, gen uint64, resolution time.Duration, done chan struct{}) {
	defer close(done)
	clock := c.opts.clock
	for {
		start := clock.Now()
		timer := clock.NewTimer(resolution)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
		lag := clock.Since(start) - resolution
		if lag < 0 {
			lag = 0
		}
		c.record(gen, lag)
	}
}

func (c *EventLoopCollector) record(gen uint64, lag time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || gen != c.gen {
		return
	}
	w := &c.window
	w.samples++
	w.sum += lag
	w.last = lag
	if lag > w.max {
		w.max = lag
	}
	if lag > c.threshold {
		w.blocked++
		c.opts.log.Debug("scheduler lag over threshold",
			zap.Duration("lag", lag), zap.Duration("threshold", c.threshold))
	}
}
