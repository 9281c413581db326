package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dewei/CancelRadar/pkg/config"
	"github.com/dewei/CancelRadar/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// shutdownTimeout 优雅关闭超时
const shutdownTimeout = 5 * time.Second

// Server API服务器
type Server struct {
	router *gin.Engine
	srv    *http.Server
	log    *zap.Logger
}

// NewServer 创建新的API服务器
func NewServer(cfg config.Config, log *zap.Logger) *Server {
	if cfg.App.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// 设置中间件
	router.Use(gin.Recovery())
	router.Use(logger.GinMiddleware(log))

	srv := &http.Server{
		Addr:         ":" + cfg.API.Port,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	return &Server{
		router: router,
		srv:    srv,
		log:    log.Named("api"),
	}
}

// SetupRoutes 设置路由
func (s *Server) SetupRoutes(handlers *Handlers) {
	s.router.GET("/", handlers.Root)
	s.router.GET("/health", handlers.HealthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 预测
	s.router.POST("/predict", handlers.Predict)

	// 提醒
	reminders := s.router.Group("/recordatorios")
	{
		reminders.POST("/enviar", handlers.SendReminders)
		reminders.GET("/alertas", handlers.ListAlerts)
		reminders.GET("/estadisticas", handlers.Stats)
	}
}

// Handler 返回路由，用于测试
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动服务器，ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API服务器启动", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("启动服务器失败: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 优雅关闭
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}
	s.log.Info("服务器已关闭")
	return nil
}
