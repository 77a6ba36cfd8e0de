package monitor

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/telemetry-agent/pkg/metric"
)

type sinkKey struct {
	name string
	typ  metric.Type
}

// BatchSink 订阅 MetricsStream 的 data 事件，把每个数值型指标的最新值导出为 Prometheus gauge，
// 同时保留最近一次刷出的完整批次供 /snapshot 读取。
type BatchSink struct {
	desc *prometheus.Desc

	mu     sync.RWMutex
	values map[sinkKey]float64
	last   []metric.Metric
}

// NewBatchSink 创建导出器
func NewBatchSink() *BatchSink {
	return &BatchSink{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "metric_value"),
			"Last flushed value of a numeric agent metric",
			[]string{"name", "type"}, nil,
		),
		values: make(map[sinkKey]float64),
	}
}

// Update 作为 data 事件处理函数
func (s *BatchSink) Update(batch []metric.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range batch {
		if v, ok := m.Value().Float(); ok {
			s.values[sinkKey{name: m.Name(), typ: m.Type()}] = v
		}
	}
	s.last = metric.CloneBatch(batch)
}

// Snapshot 最近一次刷出的批次副本
func (s *BatchSink) Snapshot() []metric.Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return metric.CloneBatch(s.last)
}

// Describe 实现 prometheus.Collector
func (s *BatchSink) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.desc
}

// Collect 实现 prometheus.Collector
func (s *BatchSink) Collect(ch chan<- prometheus.Metric) {
	s.mu.RLock()
	keys := make([]sinkKey, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	values := make(map[sinkKey]float64, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].typ < keys[j].typ
	})
	for _, k := range keys {
		ch <- prometheus.MustNewConstMetric(s.desc, prometheus.GaugeValue, values[k], k.name, string(k.typ))
	}
}
