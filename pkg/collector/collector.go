// Package collector 采集器契约与内置采集器（内存 / CPU / 调度延迟）。
package collector

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/telemetry-agent/pkg/metric"
)

// ErrNotStarted 未启动时调用 Collect
var ErrNotStarted = errors.New("Collector must be started before collecting metrics")

// Collector 采集器接口
//
// Start/Stop 幂等；Start 失败时采集器保持未启动状态。
// Collect 只允许有限时间的等待，返回一批有限的指标。
type Collector interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Collect(ctx context.Context) ([]metric.Metric, error)
}

// Option 采集器公共选项
type Option func(*options)

type options struct {
	log   *zap.Logger
	clock clockwork.Clock
}

// WithLogger 指定 logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock 指定时钟（测试用 fake clock）
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func buildOptions(log *zap.Logger, opts []Option) options {
	o := options{log: log, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// millis Duration 转毫秒（保留小数）
func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
