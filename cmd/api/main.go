package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dewei/CancelRadar/pkg/api"
	"github.com/dewei/CancelRadar/pkg/config"
	"github.com/dewei/CancelRadar/pkg/database"
	"github.com/dewei/CancelRadar/pkg/dispatcher"
	"github.com/dewei/CancelRadar/pkg/logger"
	"github.com/dewei/CancelRadar/pkg/messaging"
	"github.com/dewei/CancelRadar/pkg/monitor"
	"github.com/dewei/CancelRadar/pkg/notifier"
	"github.com/dewei/CancelRadar/pkg/scheduler"
	"github.com/dewei/CancelRadar/pkg/scoring"
	"github.com/dewei/CancelRadar/pkg/triage"
	"go.uber.org/zap"
)

// version 构建时通过 -ldflags 注入
var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatalf("服务异常退出: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	zl = zl.With(zap.String("service", cfg.App.Name), zap.String("env", cfg.App.Env))
	zl.Info("启动API服务...", zap.String("config", configPath), zap.String("version", version))

	// 初始化数据库
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}
	defer db.Close()

	store := db.Alerts(database.AlertOptions{
		Threshold: cfg.RiskThreshold(),
		DueWindow: cfg.Reminders.DueWindow,
	})

	channel, err := notifier.New(cfg.Notification, zl)
	if err != nil {
		return fmt.Errorf("创建通知渠道失败: %w", err)
	}
	zl.Info("通知渠道就绪", zap.String("mode", channel.Mode()))

	mon := monitor.NewMonitor(zl)
	mon.RegisterComponent("database", func(ctx context.Context) (string, string) {
		if err := db.Ping(ctx); err != nil {
			return monitor.StatusUnhealthy, err.Error()
		}
		return monitor.StatusHealthy, ""
	})

	// 事件发布，未配置NATS时丢弃
	var publisher messaging.Publisher = messaging.NopPublisher{}
	if cfg.NATS.URL != "" {
		nc, err := messaging.NewNATSClient(ctx, cfg.NATS.URL, cfg.NATS.Stream, zl)
		if err != nil {
			return fmt.Errorf("初始化NATS失败: %w", err)
		}
		defer nc.Close()
		publisher = nc
		mon.RegisterComponent("nats", func(context.Context) (string, string) {
			if !nc.IsConnected() {
				return monitor.StatusUnhealthy, "NATS未连接"
			}
			return monitor.StatusHealthy, ""
		})
	}

	evaluator := scoring.NewLogisticModel(cfg.Risk.Model)
	svc := triage.NewService(evaluator, store, publisher, zl)

	disp := dispatcher.New(store, db.Notifications(), channel, publisher, dispatcher.Options{
		Concurrency: cfg.Reminders.Concurrency,
		MaxAttempts: cfg.Reminders.MaxAttempts,
	}, zl)

	// 每日定时提醒
	sched, err := scheduler.NewScheduler(cfg.Reminders, disp, zl)
	if err != nil {
		return fmt.Errorf("创建调度器失败: %w", err)
	}
	sched.Start()
	defer sched.Stop()
	mon.RegisterComponent("scheduler", func(context.Context) (string, string) {
		if !sched.Running() {
			return monitor.StatusUnhealthy, "调度器未运行"
		}
		return monitor.StatusHealthy, "下次执行: " + sched.Next().Format("2006-01-02 15:04:05 MST")
	})

	// 创建并启动服务器
	server := api.NewServer(*cfg, zl)
	server.SetupRoutes(api.NewHandlers(svc, store, disp, mon, api.ServiceInfo{
		Name:             cfg.App.Name,
		Version:          version,
		NotificationMode: channel.Mode(),
		Threshold:        cfg.RiskThreshold(),
	}, zl))

	return server.Run(ctx)
}
