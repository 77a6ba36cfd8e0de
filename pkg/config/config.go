package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var valid = validator.New()

// Config 全局配置结构体（聚合所有核心模块）
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server" comment:"HTTP服务配置"`
	Agent  AgentOptions `yaml:"agent" mapstructure:"agent" comment:"采集 Agent 配置"`
	Log    ZapLogConfig `yaml:"log" mapstructure:"log" comment:"日志配置"`
}

// ServerConfig HTTP服务配置（超时统一为time.Duration，支持"30s"解析）
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" validate:"required,hostname_port" comment:"HTTP监听地址（格式：ip:port）"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"required,gt=0" comment:"读取超时时间（如30s）"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"required,gt=0" comment:"写入超时时间（如30s）"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"required,gt=0" comment:"空闲连接超时时间（如60s）"`
}

// ZapLogConfig 日志配置
type ZapLogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"required,oneof=debug info warn error" comment:"日志级别" default:"info"`
	Format string `yaml:"format" mapstructure:"format" validate:"required,oneof=json console" comment:"控制台日志格式（json/console）" default:"console"`
	Path   string `yaml:"path" mapstructure:"path" comment:"日志存储路径，为空则只输出到控制台" default:"./logs"`
	MaxAge int    `yaml:"max_age" mapstructure:"max_age" validate:"gte=0" comment:"日志文件最大保存天数" default:"7"`
}

// NewDefaultConfig 创建默认配置（所有字段兜底，避免空指针/非法值）
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "0.0.0.0:9091",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Agent: DefaultAgentOptions(),
		Log: ZapLogConfig{
			Level:  "info",
			Format: "console",
			Path:   "./logs",
			MaxAge: 7,
		},
	}
}

// LoadConfigWithCli 合并 Flags + YAML + ENV，支持 time.Duration
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// 1. 绑定 Cobra Flags → Viper
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	// 2. 解析配置文件 (--config)
	configFile, _ := cmd.Flags().GetString("config")
	return load(v, configFile)
}

// Load 仅从文件加载（无 CLI 场景）
func Load(configFile string) (*Config, error) {
	return load(viper.New(), configFile)
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	cfg := NewDefaultConfig()
	setDefaults(v, cfg)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// 3. 绑定环境变量 ENV -> Viper（AGENT_SAMPLE_INTERVAL -> agent.sample_interval）
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. 解码反序列化到结构体（支持 time.Duration）
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// 5. 校验配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate 配置校验
func (c *Config) Validate() error {
	// 	1,校验Server服务配置
	if err := c.Server.Validate(); err != nil {
		return err
	}
	// 	2，校验采集配置
	if err := c.Agent.Validate(); err != nil {
		return err
	}
	// 	3，校验日志配置
	return c.Log.Validate()
}

// AgentConfig 冻结 Agent 部分
func (c *Config) AgentConfig() (AgentConfig, error) {
	return NewAgentConfig(c.Agent)
}

// setDefaults 预先注册所有键，AutomaticEnv 只对已知键生效
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)

	v.SetDefault("agent.sample_interval", cfg.Agent.SampleInterval)
	v.SetDefault("agent.enabled", cfg.Agent.Enabled)
	v.SetDefault("agent.max_memory_snapshots", cfg.Agent.MaxMemorySnapshots)
	v.SetDefault("agent.cpu_profiling_duration", cfg.Agent.CPUProfilingDuration)
	v.SetDefault("agent.eventloop_threshold", cfg.Agent.EventLoopThreshold)
	v.SetDefault("agent.metrics_buffer_size", cfg.Agent.MetricsBufferSize)
	v.SetDefault("agent.debug_mode", cfg.Agent.DebugMode)
	v.SetDefault("agent.collectors.memory.enable", cfg.Agent.Collectors.Memory.Enable)
	v.SetDefault("agent.collectors.cpu.enable", cfg.Agent.Collectors.CPU.Enable)
	v.SetDefault("agent.collectors.eventloop.enable", cfg.Agent.Collectors.EventLoop.Enable)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.path", cfg.Log.Path)
	v.SetDefault("log.max_age", cfg.Log.MaxAge)
}
