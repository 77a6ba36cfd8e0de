package registers

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/telemetry-agent/pkg/agent"
	"github.com/telemetry-agent/pkg/config"
	"github.com/telemetry-agent/pkg/logger"
	"github.com/telemetry-agent/pkg/metric"
	"github.com/telemetry-agent/pkg/monitor"
	"github.com/telemetry-agent/pkg/stream"
)

// Runtime 组装完成的采集运行时
//
// Registry  Prometheus 注册器，供 HTTP /metrics 暴露
// Agent     采集协调器，周期性调用已注册的采集器
// Stream    批次缓冲，刷出时写入 Sink
// Sink      最近一次刷出批次的导出器
type Runtime struct {
	Registry *prometheus.Registry
	Agent    *agent.Agent
	Stream   *stream.Stream
	Sink     *monitor.BatchSink
}

// Bootstrap 按配置组装 Agent、采集器、缓冲流与 Prometheus 暴露
func Bootstrap(cfg *config.Config, enableProcess bool, opts ...agent.Option) (*Runtime, error) {
	agentCfg, err := cfg.AgentConfig()
	if err != nil {
		return nil, err
	}

	// 初始化Prometheus指标注册器，进程指标可选
	promReg := prometheus.NewRegistry()
	if enableProcess {
		promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := monitor.NewMetricFactory(monitor.NewPromRegistry(promReg))

	ag := agent.New(agentCfg, append([]agent.Option{agent.WithMetricFactory(factory)}, opts...)...)
	if _, err := RegisterCollectors(ag, Modules(agentCfg)); err != nil {
		return nil, err
	}

	st, err := stream.New(agentCfg.MetricsBufferSize(), stream.WithMetricFactory(factory))
	if err != nil {
		return nil, err
	}
	sink := monitor.NewBatchSink()
	if err := promReg.Register(sink); err != nil {
		return nil, fmt.Errorf("register batch sink: %w", err)
	}

	ag.OnMetrics(st.Push)
	ag.OnError(func(err error) {
		logger.Warn("collection cycle failed", "", zap.Error(err))
	})
	st.OnData(sink.Update)
	st.OnData(func(batch []metric.Metric) {
		logger.Debug("metrics flushed", "", zap.Int("count", len(batch)))
	})

	logger.Debug("collector enable status", "",
		zap.Bool("memory_enable", agentCfg.Collectors().Memory.Enable),
		zap.Bool("cpu_enable", agentCfg.Collectors().CPU.Enable),
		zap.Bool("eventloop_enable", agentCfg.Collectors().EventLoop.Enable),
	)
	return &Runtime{Registry: promReg, Agent: ag, Stream: st, Sink: sink}, nil
}

// Start 启动采集
func (r *Runtime) Start(ctx context.Context) error {
	return r.Agent.Start(ctx)
}

// Shutdown 停止采集并把缓冲区剩余数据刷出
func (r *Runtime) Shutdown(ctx context.Context) error {
	err := r.Agent.Stop(ctx)
	r.Stream.Flush()
	return err
}
