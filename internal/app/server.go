package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/dushixiang/beacon/internal/handler"
	"github.com/dushixiang/beacon/internal/realtime"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Server HTTP 服务
type Server struct {
	logger *zap.Logger
	echo   *echo.Echo
}

// Handlers 路由需要的处理器
type Handlers struct {
	Account *handler.AccountHandler
	Agent   *handler.AgentHandler
	Metric  *handler.MetricHandler
	Report  *handler.ReportHandler
	Hub     *realtime.Hub
}

func NewServer(logger *zap.Logger, issuer *handler.TokenIssuer, h *Handlers) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Error("请求失败", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Debug("请求", fields...)
			return nil
		},
	}))

	api := e.Group("/api")
	api.POST("/login", h.Account.Login)

	secured := api.Group("", handler.Auth(issuer))
	secured.GET("/agents", h.Agent.List)
	secured.GET("/agent/:uuid", h.Agent.Get)
	secured.GET("/metrics/:uuid", h.Metric.ListTypes, handler.RequirePermission(handler.PermissionMetricsRead))
	secured.GET("/metrics/:uuid/:type", h.Metric.ListByType)
	secured.GET("/ws", h.Hub.ServeWS)

	writer := secured.Group("", handler.RequirePermission(handler.PermissionAgentsWrite))
	writer.POST("/report", h.Report.Report)
	writer.POST("/agent/:uuid/disconnect", h.Report.Disconnect)

	return &Server{
		logger: logger,
		echo:   e,
	}
}

// ServeHTTP 便于测试直接调用路由
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start 监听地址，直到 Shutdown 被调用
func (s *Server) Start(addr string) error {
	s.logger.Info("HTTP 服务启动", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
