package database

import (
	"context"
	"fmt"
	"time"

	"github.com/dewei/CancelRadar/pkg/config"
	"github.com/dewei/CancelRadar/pkg/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database 数据库连接，由进程入口负责打开和关闭
type Database struct {
	db *gorm.DB
}

// Open 根据配置打开数据库连接并执行迁移
func Open(cfg config.DatabaseConfig) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.ConnString())
	case "sqlite":
		dialector = sqlite.Open(cfg.ConnString())
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接池失败: %w", err)
	}

	// 设置连接池参数
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	// 测试连接
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("测试数据库连接失败: %w", err)
	}

	d := &Database{db: db}
	if err := d.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return d, nil
}

// Migrate 自动迁移表结构，sale_id 上建唯一索引
func (d *Database) Migrate() error {
	if err := d.db.AutoMigrate(&model.Alert{}, &model.NotificationRecord{}); err != nil {
		return fmt.Errorf("迁移表结构失败: %w", err)
	}
	return nil
}

// Ping 检查数据库是否可达
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
