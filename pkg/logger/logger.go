// Package logger 全局 zap 日志：控制台彩色输出 + rotatelogs 按天切割的 JSON 文件。
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/telemetry-agent/pkg/config"
	"github.com/telemetry-agent/pkg/goid"
)

type Logger = zap.Logger

const timeLayout = "2006-01-02 15:04:05.000 -07:00"

var (
	baseLogger    *zap.Logger
	level         = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	defaultFields = struct {
		Collector string
	}{}
	loggerInitOnce sync.Once
	mu             sync.RWMutex
)

// ParseLevel 兼容缩写（dbg/inf/war/err/...）
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "dbg", "debug":
		return zapcore.DebugLevel
	case "war", "warn":
		return zapcore.WarnLevel
	case "err", "error":
		return zapcore.ErrorLevel
	case "pan", "panic":
		return zapcore.PanicLevel
	case "fat", "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// New 按配置构建 logger，不修改全局状态
func New(cfg config.ZapLogConfig, lvl zap.AtomicLevel) (*zap.Logger, error) {
	consoleEncoderCfg := zap.NewDevelopmentEncoderConfig()
	consoleEncoderCfg.ConsoleSeparator = " "
	consoleEncoderCfg.EncodeLevel = coloredLevelEncoder
	consoleEncoderCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("\033[34m%s\033[0m", t.Format(timeLayout)))
	}
	// Caller 两级路径
	consoleEncoderCfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(fmt.Sprintf("%s:%d", rel, c.Line))
	}

	jsonCfg := zap.NewProductionEncoderConfig()
	jsonCfg.TimeKey = "timestamp"
	jsonCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(timeLayout))
	}
	jsonCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	jsonEncoder := zapcore.NewJSONEncoder(jsonCfg)

	stdoutEncoder := zapcore.NewConsoleEncoder(consoleEncoderCfg)
	if cfg.Format == "json" {
		stdoutEncoder = jsonEncoder
	}
	cores := []zapcore.Core{
		zapcore.NewCore(stdoutEncoder, zapcore.AddSync(os.Stdout), lvl),
	}

	if strings.TrimSpace(cfg.Path) != "" {
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", cfg.Path, err)
		}
		maxAge := time.Duration(cfg.MaxAge) * 24 * time.Hour
		if maxAge <= 0 {
			maxAge = 7 * 24 * time.Hour
		}
		writer, err := rotatelogs.New(
			filepath.Join(cfg.Path, "agent-%Y%m%d.log"),
			rotatelogs.WithMaxAge(maxAge),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			return nil, fmt.Errorf("open rotate logs: %w", err)
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(writer), lvl))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// InitLogger 初始化全局 logger 并返回实例
func InitLogger(cfg *config.ZapLogConfig) (*zap.Logger, error) {
	var err error
	loggerInitOnce.Do(func() {
		level.SetLevel(ParseLevel(cfg.Level))
		var l *zap.Logger
		if l, err = New(*cfg, level); err != nil {
			return
		}
		mu.Lock()
		baseLogger = l
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	return GetLogger(), nil
}

// SetLevel 运行期调整日志级别（debugMode 打开时切到 debug）
func SetLevel(s string) {
	level.SetLevel(ParseLevel(s))
}

// GetLogger 全局 logger；未初始化时返回 nop logger
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if baseLogger == nil {
		return zap.NewNop()
	}
	return baseLogger
}

// Named 组件专用子 logger
func Named(component string) *zap.Logger {
	return GetLogger().Named(component)
}

func SetDefaultCollector(collector string) {
	mu.Lock()
	defer mu.Unlock()
	defaultFields.Collector = collector
}

func GetDefaultCollector() string {
	mu.RLock()
	defer mu.RUnlock()
	return defaultFields.Collector
}

func getDefaultFields(collectorOverride string) []zapcore.Field {
	collector := GetDefaultCollector()
	if collectorOverride != "" {
		collector = collectorOverride
	}
	return []zapcore.Field{
		zap.String("collector", collector),
		zap.String("goid", goid.String()),
	}
}

func log(lvl zapcore.Level, msg string, collectorOverride string, fields ...zapcore.Field) {
	l := GetLogger().WithOptions(zap.AddCallerSkip(2))
	if ce := l.Check(lvl, msg); ce != nil {
		ce.Write(append(getDefaultFields(collectorOverride), fields...)...)
	}
}

func Debug(msg string, collectorOverride string, fields ...zapcore.Field) {
	log(zap.DebugLevel, msg, collectorOverride, fields...)
}
func Info(msg string, collectorOverride string, fields ...zapcore.Field) {
	log(zap.InfoLevel, msg, collectorOverride, fields...)
}
func Warn(msg string, collectorOverride string, fields ...zapcore.Field) {
	log(zap.WarnLevel, msg, collectorOverride, fields...)
}
func Error(msg string, collectorOverride string, fields ...zapcore.Field) {
	log(zap.ErrorLevel, msg, collectorOverride, fields...)
}

func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if baseLogger == nil {
		return nil
	}
	return baseLogger.Sync()
}

func coloredLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var levelStr string
	switch level {
	case zapcore.DebugLevel:
		levelStr = "\033[36mDEBUG\033[0m"
	case zapcore.InfoLevel:
		levelStr = "\033[32mINFO \033[0m"
	case zapcore.WarnLevel:
		levelStr = "\033[33mWARN \033[0m"
	case zapcore.ErrorLevel:
		levelStr = "\033[31mERROR\033[0m"
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		levelStr = "\033[35m" + level.CapitalString() + "\033[0m"
	default:
		levelStr = "UNK  "
	}
	enc.AppendString(levelStr)
}
