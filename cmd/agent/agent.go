package agent

import (
	"github.com/spf13/cobra"
)

func initAgentFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	a := defaultCfg.Agent
	prefix := "agent."

	f.Duration(prefix+"sample_interval", a.SampleInterval, "-> Collection cycle period | 采集周期")
	f.Bool(prefix+"enabled", a.Enabled, "-> Enable collection | 是否启用采集")
	f.Int(prefix+"max_memory_snapshots", a.MaxMemorySnapshots, "-> Heap snapshots kept for growth rate | 内存快照保留数")
	f.Duration(prefix+"cpu_profiling_duration", a.CPUProfilingDuration, "-> System CPU sampling window | CPU 采样窗口")
	f.Duration(prefix+"eventloop_threshold", a.EventLoopThreshold, "-> Scheduler lag threshold | 调度延迟阈值")
	f.Int(prefix+"metrics_buffer_size", a.MetricsBufferSize, "-> Stream buffer capacity | 缓冲区容量")
	f.Bool(prefix+"debug_mode", a.DebugMode, "-> Debug logging | 调试模式")

	f.Bool(prefix+"collectors.memory.enable", a.Collectors.Memory.Enable, "启用内存采集器")
	f.Bool(prefix+"collectors.cpu.enable", a.Collectors.CPU.Enable, "启用 CPU 采集器")
	f.Bool(prefix+"collectors.eventloop.enable", a.Collectors.EventLoop.Enable, "启用调度延迟采集器")
}
