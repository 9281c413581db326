package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/dewei/CancelRadar/pkg/config"
	"github.com/dewei/CancelRadar/pkg/model"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ChannelEmail 渠道名称
const ChannelEmail = "email"

// Result 单次发送结果，失败以值的形式返回
type Result struct {
	Status model.DeliveryStatus
	Err    error
}

// Sent 是否发送成功
func (r Result) Sent() bool {
	return r.Status == model.DeliverySent
}

// Reason 返回失败原因，成功时为空
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Channel 通知渠道
type Channel interface {
	Send(ctx context.Context, alert *model.Alert) Result
	Name() string
	Mode() string
}

var validate = validator.New()

// ValidAddress 校验邮箱格式
func ValidAddress(address string) bool {
	address = strings.TrimSpace(address)
	if address == "" {
		return false
	}
	return validate.Var(address, "required,email") == nil
}

func skipped(alert *model.Alert) Result {
	return Result{
		Status: model.DeliverySkipped,
		Err:    fmt.Errorf("收件地址无效: %q", alert.ContactEmail),
	}
}

func failed(err error) Result {
	return Result{Status: model.DeliveryFailed, Err: err}
}

// New 按配置选择渠道
func New(cfg config.NotificationConfig, log *zap.Logger) (Channel, error) {
	switch cfg.Mode {
	case config.ModeLive:
		return NewSMTPChannel(cfg, log)
	case config.ModeSimulation, "":
		return NewSimulationChannel(log), nil
	default:
		return nil, fmt.Errorf("%w: 未知通知模式 %q", config.ErrInvalidConfig, cfg.Mode)
	}
}
