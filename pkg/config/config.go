package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("配置无效")

// DefaultThreshold 默认风险阈值
const DefaultThreshold = 0.70

// 通知模式
const (
	ModeSimulation = "simulation"
	ModeLive       = "live"
)

// Config 应用配置
type Config struct {
	App struct {
		Name string `yaml:"name"`
		Env  string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	API struct {
		Port         string        `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"api"`

	Database DatabaseConfig `yaml:"database"`

	Risk struct {
		Threshold *float64    `yaml:"threshold"`
		Model     ModelConfig `yaml:"model"`
	} `yaml:"risk"`

	Notification NotificationConfig `yaml:"notification"`

	Reminders RemindersConfig `yaml:"reminders"`

	NATS struct {
		URL    string `yaml:"url"`
		Stream string `yaml:"stream"`
	} `yaml:"nats"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres, sqlite
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// ModelConfig 风险模型系数
type ModelConfig struct {
	Bias    float64            `yaml:"bias"`
	Weights map[string]float64 `yaml:"weights"`
}

// SMTPConfig SMTP凭据
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// NotificationConfig 通知渠道配置
type NotificationConfig struct {
	Mode        string        `yaml:"mode"`
	SendTimeout time.Duration `yaml:"send_timeout"`
	SMTP        SMTPConfig    `yaml:"smtp"`
}

// RemindersConfig 提醒调度配置
type RemindersConfig struct {
	Schedule    string        `yaml:"schedule"` // HH:MM
	Timezone    string        `yaml:"timezone"`
	DueWindow   time.Duration `yaml:"due_window"`
	Concurrency int           `yaml:"concurrency"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Default 返回带默认值的配置
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	// .env 文件可选
	_ = godotenv.Load()

	// 读取配置文件
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析YAML
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 环境变量覆盖
	overrideFromEnv(&config)
	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if t := c.RiskThreshold(); math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("%w: risk.threshold 必须在 [0,1] 之间, 当前 %v", ErrInvalidConfig, t)
	}

	switch c.Notification.Mode {
	case ModeSimulation:
	case ModeLive:
		if c.Notification.SMTP.Host == "" || c.Notification.SMTP.Username == "" {
			return fmt.Errorf("%w: live 模式需要 SMTP host 和 username", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: 未知通知模式 %q", ErrInvalidConfig, c.Notification.Mode)
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: 不支持的数据库驱动 %q", ErrInvalidConfig, c.Database.Driver)
	}

	if _, _, err := c.Reminders.HourMinute(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Reminders.Timezone); err != nil {
		return fmt.Errorf("%w: 时区 %q: %v", ErrInvalidConfig, c.Reminders.Timezone, err)
	}
	if c.Reminders.MaxAttempts < 0 {
		return fmt.Errorf("%w: reminders.max_attempts 不能为负数", ErrInvalidConfig)
	}

	return nil
}

// HourMinute 解析 HH:MM 形式的调度时间
func (r RemindersConfig) HourMinute() (int, int, error) {
	parts := strings.Split(r.Schedule, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: 调度时间格式应为 HH:MM, 当前 %q", ErrInvalidConfig, r.Schedule)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: 调度小时无效 %q", ErrInvalidConfig, r.Schedule)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: 调度分钟无效 %q", ErrInvalidConfig, r.Schedule)
	}
	return hour, minute, nil
}

// RiskThreshold 返回生效的风险阈值
func (c *Config) RiskThreshold() float64 {
	if c.Risk.Threshold == nil {
		return DefaultThreshold
	}
	return *c.Risk.Threshold
}

// ConnString 构建数据库连接串
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == "sqlite" {
		return "file:cancelradar.db?_foreign_keys=ON"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func applyDefaults(c *Config) {
	if c.App.Name == "" {
		c.App.Name = "CancelRadar"
	}
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.API.Port == "" {
		c.API.Port = "8001"
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 10 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	// 0 是合法阈值，只有未配置时才补默认值
	if c.Risk.Threshold == nil {
		threshold := DefaultThreshold
		c.Risk.Threshold = &threshold
	}
	if c.Notification.Mode == "" {
		c.Notification.Mode = ModeSimulation
	}
	if c.Notification.SendTimeout == 0 {
		c.Notification.SendTimeout = 15 * time.Second
	}
	if c.Notification.SMTP.Port == 0 {
		c.Notification.SMTP.Port = 587
	}
	if c.Notification.SMTP.From == "" {
		c.Notification.SMTP.From = c.Notification.SMTP.Username
	}
	if c.Reminders.Schedule == "" {
		c.Reminders.Schedule = "10:00"
	}
	if c.Reminders.Timezone == "" {
		c.Reminders.Timezone = "UTC"
	}
	if c.Reminders.DueWindow == 0 {
		c.Reminders.DueWindow = 24 * time.Hour
	}
	if c.Reminders.Concurrency <= 0 {
		c.Reminders.Concurrency = 4
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "CANCELRADAR"
	}
}
