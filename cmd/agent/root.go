package agent

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/telemetry-agent/cmd/server"
	"github.com/telemetry-agent/pkg/config"
	"github.com/telemetry-agent/pkg/logger"
	"github.com/telemetry-agent/pkg/registers"
	"github.com/telemetry-agent/pkg/signal"
	"github.com/telemetry-agent/pkg/util"
)

// Version 构建版本
var Version = "v1.0.0"

const (
	projectName     = "telemetry-agent"
	bannerColor     = "ColorBlue" // 整体统一颜色
	shutdownTimeout = 10 * time.Second
	enableProcess   = true
)

var (
	cfgFile   string
	GlobalCfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           projectName,
	Short:         "In-process runtime telemetry agent (memory/cpu/scheduler lag) with Prometheus exposition",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		var err error
		GlobalCfg, err = config.LoadConfigWithCli(cmd)
		if err != nil {
			// 统一输出错误到 stderr
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "请检查配置文件路径或使用 -c 参数指定\n")
			return err
		}
		if err := runServer(cmd.Context(), GlobalCfg); err != nil {
			fmt.Fprintf(os.Stderr, "服务启动失败: %v\n", err)
			return err
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径（为空则使用默认值 + flag + 环境变量）")
	rootCmd.Version = Version
	// 注册分组 flag
	initServerFlags(rootCmd)
	initAgentFlags(rootCmd)
	initLogFlags(rootCmd)
}

func runServer(ctx context.Context, cfg *config.Config) error {
	// 初始化日志
	log, err := logger.InitLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	// 程序退出时刷盘
	defer logger.Sync()
	if cfg.Agent.DebugMode {
		logger.SetLevel("debug")
	}

	util.PrintBanner(os.Stdout, projectName, bannerColor, Version)

	// 设置全局默认 collector（主程序相关日志自动使用）
	logger.SetDefaultCollector("main")
	logger.Info("log initialization successful", "",
		zap.String("path", cfg.Log.Path), zap.String("level", cfg.Log.Level), zap.String("format", cfg.Log.Format))
	logger.Debug("configuration initialization successful", "", zap.String("path", cfgFile))

	rt, err := registers.Bootstrap(cfg, enableProcess)
	if err != nil {
		return fmt.Errorf("bootstrap agent: %w", err)
	}

	httpServer := server.NewHTTPServer(cfg.Server, log.Named("http"), rt.Registry, rt.Agent, rt.Sink.Snapshot, Version)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("start HTTP server failed: %w", err)
	}

	if err := rt.Start(ctx); err != nil {
		_ = httpServer.Shutdown(context.Background())
		return fmt.Errorf("start agent: %w", err)
	}
	logger.Info("agent started", "",
		zap.String("agent", rt.Agent.ID()),
		zap.String("addr", httpServer.Addr()),
		zap.Duration("sampleInterval", rt.Agent.Config().SampleInterval()))

	// 关闭顺序：采集 → 刷出缓冲 → HTTP服务
	return signal.WaitForShutdown(ctx, log, shutdownTimeout, func(ctx context.Context) error {
		return multierr.Combine(rt.Shutdown(ctx), httpServer.Shutdown(ctx))
	})
}
