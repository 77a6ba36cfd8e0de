package collector

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/telemetry-agent/pkg/config"
	"github.com/telemetry-agent/pkg/logger"
	"github.com/telemetry-agent/pkg/metric"
)

// heapSnapshot 一次堆内存快照
type heapSnapshot struct {
	at       time.Time
	heapUsed uint64
}

// MemoryCollector 内存采集器：Go 堆 + 主机内存，维护最近 N 个堆快照计算增长率
type MemoryCollector struct {
	opts         options
	maxSnapshots int

	readMemStats  func(*runtime.MemStats)
	virtualMemory func(context.Context) (*mem.VirtualMemoryStat, error)

	mu        sync.Mutex
	running   bool
	snapshots []heapSnapshot
}

// NewMemoryCollector 创建内存采集器，快照上限取 MaxMemorySnapshots
func NewMemoryCollector(cfg config.AgentConfig, opts ...Option) *MemoryCollector {
	return &MemoryCollector{
		opts:          buildOptions(logger.Named("collector.memory"), opts),
		maxSnapshots:  cfg.MaxMemorySnapshots(),
		readMemStats:  runtime.ReadMemStats,
		virtualMemory: mem.VirtualMemoryWithContext,
	}
}

// Start 探测主机内存并记录第一个快照作为基线
func (c *MemoryCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if _, err := c.virtualMemory(ctx); err != nil {
		return fmt.Errorf("probe host memory: %w", err)
	}

	var ms runtime.MemStats
	c.readMemStats(&ms)
	c.snapshots = c.snapshots[:0]
	c.snapshots = append(c.snapshots, heapSnapshot{at: c.opts.clock.Now(), heapUsed: ms.HeapAlloc})
	c.running = true
	c.opts.log.Debug("memory collector started", zap.Int("maxSnapshots", c.maxSnapshots))
	return nil
}

// Stop 清空快照
func (c *MemoryCollector) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	c.snapshots = nil
	return nil
}

// Collect 采集堆与主机内存指标
func (c *MemoryCollector) Collect(ctx context.Context) ([]metric.Metric, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil, ErrNotStarted
	}

	vm, err := c.virtualMemory(ctx)
	if err != nil {
		return nil, fmt.Errorf("read host memory: %w", err)
	}
	var ms runtime.MemStats
	c.readMemStats(&ms)

	now := c.opts.clock.Now()
	c.pushSnapshot(heapSnapshot{at: now, heapUsed: ms.HeapAlloc})
	growth := c.growthRate()

	at := metric.At(now)
	var lastPause time.Duration
	if ms.NumGC > 0 {
		lastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])
	}
	return []metric.Metric{
		metric.New("memory.heap_used", metric.Int(ms.HeapAlloc), metric.TypeMemory, at,
			metric.WithMetadata(map[string]any{"unit": "bytes"})),
		metric.New("memory.heap_total", metric.Int(ms.HeapSys), metric.TypeMemory, at,
			metric.WithMetadata(map[string]any{"unit": "bytes"})),
		metric.New("memory.heap_objects", metric.Int(ms.HeapObjects), metric.TypeMemory, at),
		metric.New("memory.sys", metric.Int(ms.Sys), metric.TypeMemory, at,
			metric.WithMetadata(map[string]any{"unit": "bytes"})),
		metric.New("memory.gc", metric.Struct(map[string]any{
			"count":          uint64(ms.NumGC),
			"pause_total_ms": millis(time.Duration(ms.PauseTotalNs)),
			"last_pause_ms":  millis(lastPause),
		}), metric.TypeMemory, at),
		metric.New("memory.system_used_percent", metric.Number(vm.UsedPercent), metric.TypeMemory, at,
			metric.WithMetadata(map[string]any{"unit": "percent"})),
		metric.New("memory.system_available", metric.Int(vm.Available), metric.TypeMemory, at,
			metric.WithMetadata(map[string]any{"unit": "bytes"})),
		metric.New("memory.growth_rate", metric.Number(growth), metric.TypeMemory, at,
			metric.WithMetadata(map[string]any{"unit": "bytes/s", "samples": len(c.snapshots)})),
	}, nil
}

// pushSnapshot 追加快照并丢弃最旧的，保持不超过上限
func (c *MemoryCollector) pushSnapshot(s heapSnapshot) {
	c.snapshots = append(c.snapshots, s)
	if over := len(c.snapshots) - c.maxSnapshots; over > 0 {
		c.snapshots = append(c.snapshots[:0], c.snapshots[over:]...)
	}
}

// growthRate 相邻快照每秒堆增量的平均值
func (c *MemoryCollector) growthRate() float64 {
	var sum float64
	n := 0
	for i := 1; i < len(c.snapshots); i++ {
		dt := c.snapshots[i].at.Sub(c.snapshots[i-1].at).Seconds()
		if dt <= 0 {
			continue
		}
		delta := float64(c.snapshots[i].heapUsed) - float64(c.snapshots[i-1].heapUsed)
		sum += delta / dt
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
