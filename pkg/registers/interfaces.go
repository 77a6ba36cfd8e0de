package registers

import "github.com/telemetry-agent/pkg/collector"

// Registrar 可注册采集器的对象（*agent.Agent 实现）
// 后续扩展采集器仅需实现 collector.Collector 接口，通过 Registrar 注册即可
type Registrar interface {
	RegisterCollector(name string, c collector.Collector) error
	Collectors() []string
}
