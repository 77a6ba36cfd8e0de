package collector

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	cload "github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/telemetry-agent/pkg/config"
	"github.com/telemetry-agent/pkg/logger"
	"github.com/telemetry-agent/pkg/metric"
)

// CPUCollector CPU采集器：进程 user/system 时间、进程使用率、系统使用率与负载
type CPUCollector struct {
	opts              options
	profilingDuration time.Duration
	numCPU            int

	// 可替换的数据源
	processTimes  func(context.Context) (*cpu.TimesStat, error)
	systemPercent func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	loadAvg       func(context.Context) (*cload.AvgStat, error)

	mu       sync.Mutex
	running  bool
	baseline cpu.TimesStat // Start 时的进程 CPU 时间
	last     cpu.TimesStat // 上一次采集的进程 CPU 时间
	lastAt   time.Time
}

// NewCPUCollector 创建CPU采集器，系统使用率采样窗口取 CPUProfilingDuration
func NewCPUCollector(cfg config.AgentConfig, opts ...Option) *CPUCollector {
	return &CPUCollector{
		opts:              buildOptions(logger.Named("collector.cpu"), opts),
		profilingDuration: cfg.CPUProfilingDuration(),
		numCPU:            runtime.NumCPU(),
		systemPercent:     cpu.PercentWithContext,
		loadAvg:           cload.AvgWithContext,
	}
}

// Start 记录进程 CPU 时间基线
func (c *CPUCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if c.processTimes == nil {
		p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
		if err != nil {
			return fmt.Errorf("open current process: %w", err)
		}
		c.processTimes = p.TimesWithContext
	}
	t, err := c.processTimes(ctx)
	if err != nil {
		return fmt.Errorf("read process cpu times: %w", err)
	}
	c.baseline, c.last = *t, *t
	c.lastAt = c.opts.clock.Now()
	c.running = true
	c.opts.log.Debug("cpu collector started",
		zap.Float64("user", t.User), zap.Float64("system", t.System))
	return nil
}

// Stop 丢弃基线
func (c *CPUCollector) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	c.baseline, c.last = cpu.TimesStat{}, cpu.TimesStat{}
	return nil
}

// Collect 最多阻塞 profilingDuration（系统使用率采样窗口）
func (c *CPUCollector) Collect(ctx context.Context) ([]metric.Metric, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil, ErrNotStarted
	}

	t, err := c.processTimes(ctx)
	if err != nil {
		return nil, fmt.Errorf("read process cpu times: %w", err)
	}
	now := c.opts.clock.Now()
	usage := c.usagePercent(*t, now)
	c.last, c.lastAt = *t, now

	at := metric.At(now)
	seconds := map[string]any{"unit": "seconds"}
	out := []metric.Metric{
		metric.New("cpu.user", metric.Number(t.User-c.baseline.User), metric.TypeCPU, at, metric.WithMetadata(seconds)),
		metric.New("cpu.system", metric.Number(t.System-c.baseline.System), metric.TypeCPU, at, metric.WithMetadata(seconds)),
		metric.New("cpu.usage_percent", metric.Number(usage), metric.TypeCPU, at,
			metric.WithMetadata(map[string]any{"unit": "percent", "cores": c.numCPU})),
	}

	// 系统整体使用率，失败不影响进程指标
	if pct, err := c.systemPercent(ctx, c.profilingDuration, false); err != nil {
		c.opts.log.Debug("system cpu percent unavailable", zap.Error(err))
	} else if len(pct) > 0 {
		out = append(out, metric.New("cpu.system_usage_percent", metric.Number(pct[0]), metric.TypeCPU, at,
			metric.WithMetadata(map[string]any{"unit": "percent", "window_ms": millis(c.profilingDuration)})))
	}

	// 负载（非 unix 平台不支持）
	if avg, err := c.loadAvg(ctx); err != nil {
		c.opts.log.Debug("load average unavailable", zap.Error(err))
	} else {
		out = append(out,
			metric.New("cpu.load1", metric.Number(avg.Load1), metric.TypeCPU, at),
			metric.New("cpu.load5", metric.Number(avg.Load5), metric.TypeCPU, at),
			metric.New("cpu.load15", metric.Number(avg.Load15), metric.TypeCPU, at),
		)
	}
	return out, nil
}

// usagePercent 两次采集之间进程 CPU 时间占墙钟时间（按核数归一）的百分比
func (c *CPUCollector) usagePercent(cur cpu.TimesStat, now time.Time) float64 {
	elapsed := now.Sub(c.lastAt).Seconds()
	if elapsed <= 0 || c.numCPU <= 0 {
		return 0
	}
	busy := (cur.User - c.last.User) + (cur.System - c.last.System)
	if busy < 0 {
		return 0
	}
	return busy / elapsed / float64(c.numCPU) * 100
}
