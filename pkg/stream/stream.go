// Package stream 指标缓冲流：累积批次，达到容量时自动整体刷出，也可手动 Flush / Clear。
package stream

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/telemetry-agent/pkg/event"
	"github.com/telemetry-agent/pkg/logger"
	"github.com/telemetry-agent/pkg/metric"
	"github.com/telemetry-agent/pkg/monitor"
)

// ErrInvalidCapacity 容量必须为正数
var ErrInvalidCapacity = errors.New("stream capacity must be greater than 0")

// Option 选项
type Option func(*Stream)

// WithLogger 指定 logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Stream) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetricFactory 指定自监控指标工厂
func WithMetricFactory(f *monitor.MetricFactory) Option {
	return func(s *Stream) {
		if f != nil {
			s.metrics = f.StreamMetrics()
		}
	}
}

// Stream 指标缓冲流。Push 返回后缓冲区长度始终小于容量。
type Stream struct {
	capacity int
	log      *zap.Logger
	metrics  *monitor.StreamMetrics

	mu     sync.Mutex
	buffer []metric.Metric

	data *event.Topic[[]metric.Metric]
}

// New 创建缓冲流，容量通常取 AgentConfig.MetricsBufferSize
func New(capacity int, opts ...Option) (*Stream, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidCapacity, capacity)
	}
	s := &Stream{
		capacity: capacity,
		log:      logger.Named("stream"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = monitor.NewPrivateFactory().StreamMetrics()
	}
	s.buffer = make([]metric.Metric, 0, capacity)
	s.data = event.NewTopic("data",
		event.WithLogger[[]metric.Metric](s.log),
		event.WithCopier(metric.CloneBatch))
	return s, nil
}

// OnData 订阅刷出的批次
func (s *Stream) OnData(fn func([]metric.Metric)) event.Subscription {
	return s.data.Subscribe(fn)
}

// Push 追加批次（深拷贝），达到容量时把整个缓冲区一次性刷出
func (s *Stream) Push(batch []metric.Metric) {
	s.mu.Lock()
	for i := range batch {
		s.buffer = append(s.buffer, batch[i].Clone())
	}
	var out []metric.Metric
	if len(s.buffer) >= s.capacity {
		out = s.drainLocked()
	}
	s.metrics.Buffered.Set(float64(len(s.buffer)))
	s.mu.Unlock()

	if out != nil {
		s.publish(out, monitor.ReasonCapacity)
	}
}

// Flush 发布并清空缓冲区；缓冲区为空时不发布
func (s *Stream) Flush() {
	s.mu.Lock()
	var out []metric.Metric
	if len(s.buffer) > 0 {
		out = s.drainLocked()
	}
	s.metrics.Buffered.Set(0)
	s.mu.Unlock()

	if out != nil {
		s.publish(out, monitor.ReasonManual)
	}
}

// Clear 丢弃缓冲区内容，不发布
func (s *Stream) Clear() {
	s.mu.Lock()
	dropped := len(s.buffer)
	s.buffer = s.buffer[:0]
	s.metrics.Buffered.Set(0)
	s.mu.Unlock()
	if dropped > 0 {
		s.log.Debug("stream cleared", zap.Int("dropped", dropped))
	}
}

// Len 当前缓冲数量
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

func (s *Stream) Capacity() int { return s.capacity }

func (s *Stream) drainLocked() []metric.Metric {
	out := s.buffer
	s.buffer = make([]metric.Metric, 0, s.capacity)
	return out
}

func (s *Stream) publish(batch []metric.Metric, reason string) {
	s.metrics.Flushes.WithLabelValues(reason).Inc()
	s.metrics.Flushed.Add(float64(len(batch)))
	s.log.Debug("stream flushed", zap.Int("metrics", len(batch)), zap.String("reason", reason))
	s.data.Publish(batch)
}
