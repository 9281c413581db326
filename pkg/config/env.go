package config

import (
	"fmt"
	"os"
	"strconv"
)

// overrideFromEnv 使用环境变量覆盖配置
func overrideFromEnv(config *Config) {
	// 应用
	if env := os.Getenv("APP_NAME"); env != "" {
		config.App.Name = env
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		config.App.Env = env
	}

	// 日志
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		config.Log.Level = env
	}
	if env := os.Getenv("LOG_FORMAT"); env != "" {
		config.Log.Format = env
	}

	// 数据库配置
	if env := os.Getenv("DB_DRIVER"); env != "" {
		config.Database.Driver = env
	}
	if env := os.Getenv("DB_DSN"); env != "" {
		config.Database.DSN = env
	}
	if env := os.Getenv("DB_HOST"); env != "" {
		config.Database.Host = env
	}
	if env := os.Getenv("DB_PORT"); env != "" {
		var port int
		fmt.Sscanf(env, "%d", &port)
		if port > 0 {
			config.Database.Port = port
		}
	}
	if env := os.Getenv("DB_USER"); env != "" {
		config.Database.User = env
	}
	if env := os.Getenv("DB_PASSWORD"); env != "" {
		config.Database.Password = env
	}
	if env := os.Getenv("DB_NAME"); env != "" {
		config.Database.DBName = env
	}

	// 风险阈值
	if env := os.Getenv("RISK_THRESHOLD"); env != "" {
		if v, err := strconv.ParseFloat(env, 64); err == nil {
			config.Risk.Threshold = &v
		}
	}

	// 通知配置
	if env := os.Getenv("NOTIFICATION_MODE"); env != "" {
		config.Notification.Mode = env
	}
	if env := os.Getenv("SMTP_HOST"); env != "" {
		config.Notification.SMTP.Host = env
	}
	if env := os.Getenv("SMTP_PORT"); env != "" {
		if port, err := strconv.Atoi(env); err == nil && port > 0 {
			config.Notification.SMTP.Port = port
		}
	}
	if env := os.Getenv("SMTP_USER"); env != "" {
		config.Notification.SMTP.Username = env
	}
	if env := os.Getenv("SMTP_PASSWORD"); env != "" {
		config.Notification.SMTP.Password = env
	}
	if env := os.Getenv("SMTP_FROM"); env != "" {
		config.Notification.SMTP.From = env
	}

	// 提醒调度
	if env := os.Getenv("REMINDER_SCHEDULE"); env != "" {
		config.Reminders.Schedule = env
	}
	if env := os.Getenv("REMINDER_TZ"); env != "" {
		config.Reminders.Timezone = env
	}
	if env := os.Getenv("REMINDER_MAX_ATTEMPTS"); env != "" {
		if n, err := strconv.Atoi(env); err == nil {
			config.Reminders.MaxAttempts = n
		}
	}

	// NATS配置
	if env := os.Getenv("NATS_URL"); env != "" {
		config.NATS.URL = env
	}

	// API配置
	if env := os.Getenv("API_PORT"); env != "" {
		config.API.Port = env
	}
}

// GetDefaultConfigPath 获取默认配置文件路径
func GetDefaultConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev" // 默认开发环境
	}

	return fmt.Sprintf("configs/%s/app.yaml", env)
}
