package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/dewei/CancelRadar/pkg/config"
	"github.com/dewei/CancelRadar/pkg/model"
	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"go.uber.org/zap"
)

// DefaultSendTimeout 单次发送超时
const DefaultSendTimeout = 15 * time.Second

// ErrSendTimeout 发送超时
var ErrSendTimeout = errors.New("发送超时")

// sender shoutrrr 路由器的发送能力
type sender interface {
	Send(message string, params *types.Params) []error
}

// SMTPChannel 通过 shoutrrr 的 smtp 服务真实发送
type SMTPChannel struct {
	sender  sender
	timeout time.Duration
	log     *zap.Logger
}

// NewSMTPChannel 创建真实发送渠道
func NewSMTPChannel(cfg config.NotificationConfig, log *zap.Logger) (*SMTPChannel, error) {
	if cfg.SMTP.Host == "" || cfg.SMTP.Username == "" {
		return nil, fmt.Errorf("%w: live 模式需要 SMTP host 和 username", config.ErrInvalidConfig)
	}

	s, err := shoutrrr.CreateSender(SMTPURL(cfg.SMTP))
	if err != nil {
		return nil, fmt.Errorf("创建SMTP发送器失败: %w", err)
	}
	return newSMTPChannel(s, cfg.SendTimeout, log), nil
}

func newSMTPChannel(s sender, timeout time.Duration, log *zap.Logger) *SMTPChannel {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &SMTPChannel{sender: s, timeout: timeout, log: log.Named("notifier")}
}

// SMTPURL 生成 shoutrrr smtp 服务地址
func SMTPURL(cfg config.SMTPConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	query := url.Values{}
	query.Set("fromaddress", from)
	query.Set("toaddresses", from)
	query.Set("subject", Subject)
	query.Set("usehtml", "no")

	u := url.URL{
		Scheme:   "smtp",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/",
		RawQuery: query.Encode(),
	}
	return u.String()
}

// Send 发送一封提醒，超时或任何错误都视为失败
func (s *SMTPChannel) Send(ctx context.Context, alert *model.Alert) Result {
	if !ValidAddress(alert.ContactEmail) {
		return skipped(alert)
	}
	if err := ctx.Err(); err != nil {
		return failed(err)
	}

	msg := Render(alert)
	params := types.Params{
		"toaddresses": msg.To,
		"subject":     msg.Subject,
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// shoutrrr 不接受 context，用带缓冲的通道避免超时后 goroutine 阻塞
	done := make(chan []error, 1)
	go func() {
		done <- s.sender.Send(msg.Body, &params)
	}()

	select {
	case errs := <-done:
		if err := errors.Join(errs...); err != nil {
			s.log.Warn("发送提醒失败", zap.String("sale_id", alert.SaleID), zap.Error(err))
			return failed(fmt.Errorf("SMTP发送失败: %w", err))
		}
		s.log.Info("提醒已发送", zap.String("sale_id", alert.SaleID), zap.String("to", msg.To))
		return Result{Status: model.DeliverySent}
	case <-ctx.Done():
		err := ErrSendTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			err = fmt.Errorf("发送被取消: %w", ctx.Err())
		}
		s.log.Warn("发送提醒超时", zap.String("sale_id", alert.SaleID), zap.Duration("timeout", s.timeout))
		return failed(err)
	}
}

func (s *SMTPChannel) Name() string { return ChannelEmail }

func (s *SMTPChannel) Mode() string { return config.ModeLive }
