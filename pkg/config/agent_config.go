package config

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig 所有配置校验错误都可以用 errors.Is 匹配到它
var ErrInvalidConfig = errors.New("invalid config")

// ValidationError 单个字段的校验错误，Error() 即面向用户的描述
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidConfig }

// agentValid 以 name 标签作为字段名，保证错误信息里是 sampleInterval 这类名字
var agentValid = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("name"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}()

// CollectorToggle 单个内置采集器开关
type CollectorToggle struct {
	Enable bool `yaml:"enable" mapstructure:"enable"`
}

// CollectorToggles 内置采集器开关
type CollectorToggles struct {
	Memory    CollectorToggle `yaml:"memory" mapstructure:"memory"`
	CPU       CollectorToggle `yaml:"cpu" mapstructure:"cpu"`
	EventLoop CollectorToggle `yaml:"eventloop" mapstructure:"eventloop"`
}

// AgentOptions Agent 配置的可变输入（来自文件/flag/env），字段顺序即校验顺序
type AgentOptions struct {
	SampleInterval       time.Duration    `yaml:"sample_interval" mapstructure:"sample_interval" name:"sampleInterval" validate:"gt=0" comment:"采集周期"`
	Enabled              bool             `yaml:"enabled" mapstructure:"enabled" name:"enabled" comment:"是否启用采集"`
	MaxMemorySnapshots   int              `yaml:"max_memory_snapshots" mapstructure:"max_memory_snapshots" name:"maxMemorySnapshots" validate:"gt=0" comment:"内存快照保留数"`
	CPUProfilingDuration time.Duration    `yaml:"cpu_profiling_duration" mapstructure:"cpu_profiling_duration" name:"cpuProfilingDuration" validate:"gt=0" comment:"CPU 采样窗口"`
	EventLoopThreshold   time.Duration    `yaml:"eventloop_threshold" mapstructure:"eventloop_threshold" name:"eventLoopThreshold" validate:"gt=0" comment:"调度延迟阈值"`
	MetricsBufferSize    int              `yaml:"metrics_buffer_size" mapstructure:"metrics_buffer_size" name:"metricsBufferSize" validate:"gt=0" comment:"缓冲区容量"`
	DebugMode            bool             `yaml:"debug_mode" mapstructure:"debug_mode" name:"debugMode" comment:"调试模式"`
	Collectors           CollectorToggles `yaml:"collectors" mapstructure:"collectors" name:"collectors"`
}

// DefaultAgentOptions 默认值
func DefaultAgentOptions() AgentOptions {
	return AgentOptions{
		SampleInterval:       time.Second,
		Enabled:              true,
		MaxMemorySnapshots:   10,
		CPUProfilingDuration: 100 * time.Millisecond,
		EventLoopThreshold:   100 * time.Millisecond,
		MetricsBufferSize:    100,
		DebugMode:            false,
		Collectors: CollectorToggles{
			Memory:    CollectorToggle{Enable: true},
			CPU:       CollectorToggle{Enable: true},
			EventLoop: CollectorToggle{Enable: true},
		},
	}
}

// AgentConfig 构造后不可变的 Agent 配置；只能通过 NewAgentConfig 得到合法实例。
// 按值传递，全部字段私有，没有任何 setter。
type AgentConfig struct {
	opts AgentOptions
}

// NewAgentConfig 校验并冻结配置，返回第一个不合法字段的错误
func NewAgentConfig(opts AgentOptions) (AgentConfig, error) {
	if err := opts.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return AgentConfig{opts: opts}, nil
}

// MustAgentConfig 测试与示例用
func MustAgentConfig(opts AgentOptions) AgentConfig {
	c, err := NewAgentConfig(opts)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate 字段级校验，错误信息形如 "sampleInterval must be greater than 0"
func (o AgentOptions) Validate() error {
	err := agentValid.Struct(o)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	fe := verrs[0]
	msg := fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	if fe.Tag() == "gt" {
		msg = fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	}
	return &ValidationError{Field: fe.Field(), Message: msg}
}

func (c AgentConfig) SampleInterval() time.Duration       { return c.opts.SampleInterval }
func (c AgentConfig) Enabled() bool                       { return c.opts.Enabled }
func (c AgentConfig) MaxMemorySnapshots() int             { return c.opts.MaxMemorySnapshots }
func (c AgentConfig) CPUProfilingDuration() time.Duration { return c.opts.CPUProfilingDuration }
func (c AgentConfig) EventLoopThreshold() time.Duration   { return c.opts.EventLoopThreshold }
func (c AgentConfig) MetricsBufferSize() int              { return c.opts.MetricsBufferSize }
func (c AgentConfig) DebugMode() bool                     { return c.opts.DebugMode }
func (c AgentConfig) Collectors() CollectorToggles        { return c.opts.Collectors }

// Options 返回输入选项的副本（可修改后重新 NewAgentConfig）
func (c AgentConfig) Options() AgentOptions { return c.opts }
