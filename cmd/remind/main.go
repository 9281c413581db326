package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dewei/CancelRadar/pkg/config"
	"github.com/dewei/CancelRadar/pkg/database"
	"github.com/dewei/CancelRadar/pkg/dispatcher"
	"github.com/dewei/CancelRadar/pkg/logger"
	"github.com/dewei/CancelRadar/pkg/messaging"
	"github.com/dewei/CancelRadar/pkg/notifier"
	"go.uber.org/zap"
)

// 手动执行一次提醒批次，输出 JSON 结果
func main() {
	source := flag.String("source", string(dispatcher.Pending), "候选来源: pending 或 due_soon")
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	if err := run(*configPath, dispatcher.Source(*source)); err != nil {
		log.Fatalf("执行提醒批次失败: %v", err)
	}
}

func run(configPath string, source dispatcher.Source) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
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

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}
	defer db.Close()

	channel, err := notifier.New(cfg.Notification, zl)
	if err != nil {
		return err
	}

	var publisher messaging.Publisher = messaging.NopPublisher{}
	if cfg.NATS.URL != "" {
		nc, err := messaging.NewNATSClient(ctx, cfg.NATS.URL, cfg.NATS.Stream, zl)
		if err != nil {
			zl.Warn("NATS不可用，本次不发布事件", zap.Error(err))
		} else {
			defer nc.Close()
			publisher = nc
		}
	}

	store := db.Alerts(database.AlertOptions{
		Threshold: cfg.RiskThreshold(),
		DueWindow: cfg.Reminders.DueWindow,
	})
	disp := dispatcher.New(store, db.Notifications(), channel, publisher, dispatcher.Options{
		Concurrency: cfg.Reminders.Concurrency,
		MaxAttempts: cfg.Reminders.MaxAttempts,
	}, zl)

	res, err := disp.RunBatch(ctx, source)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
