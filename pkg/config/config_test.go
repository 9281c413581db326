package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.70, cfg.RiskThreshold(), 1e-9)
	assert.Equal(t, ModeSimulation, cfg.Notification.Mode)
	assert.Equal(t, "10:00", cfg.Reminders.Schedule)
	assert.Equal(t, 24*time.Hour, cfg.Reminders.DueWindow)
	assert.Equal(t, 4, cfg.Reminders.Concurrency)
	assert.Equal(t, 0, cfg.Reminders.MaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.Notification.SendTimeout)
}

func TestLoadConfig_ZeroThresholdIsKept(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\nrisk:\n  threshold: 0\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.RiskThreshold())
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n")
	t.Setenv("RISK_THRESHOLD", "0.85")
	t.Setenv("REMINDER_SCHEDULE", "08:30")
	t.Setenv("REMINDER_MAX_ATTEMPTS", "3")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, cfg.RiskThreshold(), 1e-9)
	assert.Equal(t, "08:30", cfg.Reminders.Schedule)
	assert.Equal(t, 3, cfg.Reminders.MaxAttempts)
}

func TestLoadConfig_NaNThresholdRejected(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n")
	t.Setenv("RISK_THRESHOLD", "NaN")

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"threshold above one", func(c *Config) { v := 1.2; c.Risk.Threshold = &v }},
		{"unknown mode", func(c *Config) { c.Notification.Mode = "carrier-pigeon" }},
		{"live without smtp", func(c *Config) { c.Notification.Mode = ModeLive }},
		{"bad schedule", func(c *Config) { c.Reminders.Schedule = "25:00" }},
		{"bad timezone", func(c *Config) { c.Reminders.Timezone = "Mars/Olympus" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mongo" }},
		{"negative attempts", func(c *Config) { c.Reminders.MaxAttempts = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestValidate_LiveWithSMTP(t *testing.T) {
	cfg := Default()
	cfg.Notification.Mode = ModeLive
	cfg.Notification.SMTP.Host = "smtp.example.com"
	cfg.Notification.SMTP.Username = "reminders@example.com"
	require.NoError(t, cfg.Validate())
}

func TestHourMinute(t *testing.T) {
	h, m, err := RemindersConfig{Schedule: "07:45"}.HourMinute()
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 45, m)
}
