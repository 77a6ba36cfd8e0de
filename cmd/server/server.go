package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/telemetry-agent/pkg/config"
	"github.com/telemetry-agent/pkg/metric"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AgentStatus /health 需要的 Agent 状态（*agent.Agent 实现）
type AgentStatus interface {
	ID() string
	IsRunning() bool
	Collectors() []string
}

// SnapshotFunc 返回最近一次刷出的批次
type SnapshotFunc func() []metric.Metric

// Server HTTP服务实例，封装核心依赖和配置
type Server struct {
	cfg      config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	registry *prometheus.Registry
	router   chi.Router
	status   AgentStatus
	snapshot SnapshotFunc
	version  string
	addr     string
}

// NewHTTPServer 创建HTTP服务实例
func NewHTTPServer(cfg config.ServerConfig, logger *zap.Logger, registry *prometheus.Registry,
	status AgentStatus, snapshot SnapshotFunc, version string) *Server {
	srv := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		status:   status,
		snapshot: snapshot,
		version:  version,
		addr:     cfg.Addr,
	}

	// 注册核心端点
	srv.router = srv.routes()

	srv.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return srv
}

// Handler 路由（测试用）
func (s *Server) Handler() http.Handler { return s.router }

// Addr 实际监听地址（Start 之后有效）
func (s *Server) Addr() string { return s.addr }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logMiddleware)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/snapshot", s.handleSnapshot)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(s.logger),
	}))
	return r
}

// logMiddleware 统一日志记录
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug(
			"HTTP request",
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// handleIndex 根路径 / 显示 HTML 页面，包含可点击的链接
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="zh-CN">
<head>
	<meta charset="UTF-8">
	<title>Telemetry Agent</title>
	<style>
		body { font-family: Arial, sans-serif; margin: 40px; }
		a { display: block; margin: 8px 0; font-size: 18px; }
		code { background-color: #f0f0f0; padding: 2px 4px; }
	</style>
</head>
<body>
	<h1>Telemetry Agent</h1>
	<p>Version: <code>%s</code></p>
	<p>Agent: <code>%s</code></p>
	<h2>Available Endpoints:</h2>
	<a href="/health">/health - 健康检查</a>
	<a href="/metrics">/metrics - Prometheus 指标暴露</a>
	<a href="/snapshot">/snapshot - 最近一次刷出的批次</a>
</body>
</html>
`, s.version, s.status.ID())
}

type healthResponse struct {
	Status     string   `json:"status"`
	Agent      string   `json:"agent"`
	Running    bool     `json:"running"`
	Collectors []string `json:"collectors"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Agent:      s.status.ID(),
		Running:    s.status.IsRunning(),
		Collectors: s.status.Collectors(),
	}
	if !resp.Running {
		resp.Status = "stopped"
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type snapshotResponse struct {
	Agent   string          `json:"agent"`
	Count   int             `json:"count"`
	Metrics []metric.Metric `json:"metrics"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	batch := s.snapshot()
	s.writeJSON(w, http.StatusOK, snapshotResponse{
		Agent:   s.status.ID(),
		Count:   len(batch),
		Metrics: batch,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response failed", zap.Error(err))
	}
}

// Start 启动HTTP服务（非阻塞），监听失败同步返回
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.addr = ln.Addr().String()

	var routes []string
	_ = chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, method+" "+route)
		return nil
	})
	s.logger.Info(
		"starting HTTP server",
		zap.String("listen_addr", s.addr),
		zap.Strings("routes", routes),
	)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown 优雅关闭HTTP服务
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}
	s.logger.Info("HTTP server shutdown successfully")
	return nil
}
