package monitor

import "github.com/prometheus/client_golang/prometheus"

// 周期结果标签
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// 刷新原因标签
const (
	ReasonCapacity = "capacity"
	ReasonManual   = "manual"
)

// -------------------------- Agent 指标结构体 --------------------------
type AgentMetrics struct {
	CollectErrors   *prometheus.CounterVec   // 采集失败次数（collector）
	CollectDuration *prometheus.HistogramVec // 单个采集器耗时（collector）
	Cycles          *prometheus.CounterVec   // 采集周期数（result）
	LastBatchSize   prometheus.Gauge         // 最近一次批次大小
	Running         prometheus.Gauge         // 运行状态
}

// -------------------------- MetricsStream 指标结构体 --------------------------
type StreamMetrics struct {
	Flushes  *prometheus.CounterVec // 刷新次数（reason）
	Flushed  prometheus.Counter     // 累计刷出的指标数
	Buffered prometheus.Gauge       // 当前缓冲数量
}
