// Package monitor Agent 与 MetricsStream 的 Prometheus 自监控指标，以及把最近一次刷出的批次导出为 Prometheus 指标的 BatchSink。
package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "telemetry"

// MetricFactory 指标工厂，统一创建并注册自监控指标。
// 同一个工厂多次获取得到同一组指标，避免重复注册。
type MetricFactory struct {
	reg Registers

	mu     sync.Mutex
	agent  *AgentMetrics
	stream *StreamMetrics
}

// NewMetricFactory 创建指标工厂
func NewMetricFactory(reg Registers) *MetricFactory {
	return &MetricFactory{reg: reg}
}

// NewPrivateFactory 使用独立 Registry 的工厂（未接入 HTTP 暴露时的默认值）
func NewPrivateFactory() *MetricFactory {
	return NewMetricFactory(NewPromRegistry(prometheus.NewRegistry()))
}

// AgentMetrics Agent 自监控指标
func (f *MetricFactory) AgentMetrics() *AgentMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.agent == nil {
		f.agent = &AgentMetrics{
			CollectErrors:   f.newAgentCollectErrorsTotal(),
			CollectDuration: f.newAgentCollectDurationSeconds(),
			Cycles:          f.newAgentCyclesTotal(),
			LastBatchSize:   f.newAgentLastBatchSize(),
			Running:         f.newAgentRunning(),
		}
	}
	return f.agent
}

// StreamMetrics MetricsStream 自监控指标
func (f *MetricFactory) StreamMetrics() *StreamMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stream == nil {
		f.stream = &StreamMetrics{
			Flushes:  f.newStreamFlushesTotal(),
			Flushed:  f.newStreamFlushedMetricsTotal(),
			Buffered: f.newStreamBufferedMetrics(),
		}
	}
	return f.stream
}

// -------------------------- Agent自身监控指标 --------------------------

func (f *MetricFactory) newAgentCollectErrorsTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_collect_errors_total",
			Help:      "Total number of collector errors",
		},
		[]string{"collector"},
	)
}

// newAgentCollectDurationSeconds 0.001s ~ 0.512s，覆盖 CPU 采样窗口
func (f *MetricFactory) newAgentCollectDurationSeconds() *prometheus.HistogramVec {
	return promauto.With(f.reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_collect_duration_seconds",
			Help:      "Duration of collector execution",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"collector"},
	)
}

func (f *MetricFactory) newAgentCyclesTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_cycles_total",
			Help:      "Total number of collection cycles by result",
		},
		[]string{"result"},
	)
}

func (f *MetricFactory) newAgentLastBatchSize() prometheus.Gauge {
	return promauto.With(f.reg).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "agent_last_batch_size",
		Help:      "Number of metrics in the last published batch",
	})
}

func (f *MetricFactory) newAgentRunning() prometheus.Gauge {
	return promauto.With(f.reg).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "agent_running",
		Help:      "1 when the agent loop is running",
	})
}

// -------------------------- MetricsStream 指标 --------------------------

func (f *MetricFactory) newStreamFlushesTotal() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_flushes_total",
			Help:      "Total number of stream flushes by reason",
		},
		[]string{"reason"},
	)
}

func (f *MetricFactory) newStreamFlushedMetricsTotal() prometheus.Counter {
	return promauto.With(f.reg).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_flushed_metrics_total",
		Help:      "Total number of metrics delivered by stream flushes",
	})
}

func (f *MetricFactory) newStreamBufferedMetrics() prometheus.Gauge {
	return promauto.With(f.reg).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_buffered_metrics",
		Help:      "Number of metrics currently buffered in the stream",
	})
}
