package signal

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ErrShutdownTimeout 关闭逻辑未在超时时间内完成
var ErrShutdownTimeout = errors.New("shutdown timed out")

// WaitForShutdown 监听退出信号（SIGINT/SIGTERM）或 ctx 取消，在 timeout 内执行优雅关闭
func WaitForShutdown(ctx context.Context, logger *zap.Logger, timeout time.Duration, shutdownFunc func(context.Context) error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// 阻塞等待信号
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down", zap.Error(ctx.Err()))
	}
	return Shutdown(logger, timeout, shutdownFunc)
}

// Shutdown 带超时执行关闭逻辑
func Shutdown(logger *zap.Logger, timeout time.Duration, shutdownFunc func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- shutdownFunc(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("shutdown failed", zap.Error(err))
			return err
		}
		logger.Info("shutdown completed")
		return nil
	case <-ctx.Done():
		logger.Error("shutdown timed out", zap.Duration("timeout", timeout))
		return ErrShutdownTimeout
	}
}
