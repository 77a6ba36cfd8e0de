package registers

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/telemetry-agent/pkg/collector"
	"github.com/telemetry-agent/pkg/config"
	"github.com/telemetry-agent/pkg/logger"
)

// 内置采集器名称
const (
	MemoryCollector    = "memory"
	CPUCollector       = "cpu"
	EventLoopCollector = "eventloop"
)

// ErrNoCollectors 所有内置采集器都被关闭
var ErrNoCollectors = errors.New("no collectors enabled; check agent.collectors")

type Module struct {
	Enabled bool
	Name    string
	NewFunc func() collector.Collector
}

// Modules 内置采集器清单，顺序即注册顺序
func Modules(cfg config.AgentConfig, opts ...collector.Option) []Module {
	toggles := cfg.Collectors()
	return []Module{
		{
			Enabled: toggles.Memory.Enable,
			Name:    MemoryCollector,
			NewFunc: func() collector.Collector { return collector.NewMemoryCollector(cfg, opts...) },
		},
		{
			Enabled: toggles.CPU.Enable,
			Name:    CPUCollector,
			NewFunc: func() collector.Collector { return collector.NewCPUCollector(cfg, opts...) },
		},
		{
			Enabled: toggles.EventLoop.Enable,
			Name:    EventLoopCollector,
			NewFunc: func() collector.Collector { return collector.NewEventLoopCollector(cfg, opts...) },
		},
	}
}

// RegisterCollectors 采集器注册统一入口（开关控制），返回已注册的名称
// 新增采集器只需在 Modules 列表添加一条。
func RegisterCollectors(r Registrar, modules []Module) ([]string, error) {
	var registered []string
	for _, m := range modules {
		if !m.Enabled {
			logger.Debug("collector disabled", m.Name)
			continue
		}
		if err := r.RegisterCollector(m.Name, m.NewFunc()); err != nil {
			return registered, fmt.Errorf("register collector %q: %w", m.Name, err)
		}
		registered = append(registered, m.Name)
		logger.Debug("registered collector", m.Name)
	}
	if len(registered) == 0 {
		return nil, ErrNoCollectors
	}
	// 日志输出所有已启用的采集器（便于排查配置）
	logger.Debug("all enabled collectors registered", "", zap.Strings("enabled_collectors", r.Collectors()))
	return registered, nil
}
