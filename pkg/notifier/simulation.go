package notifier

import (
	"context"
	"sync"

	"github.com/dewei/CancelRadar/pkg/config"
	"github.com/dewei/CancelRadar/pkg/model"
	"go.uber.org/zap"
)

// SimulationChannel 模拟渠道，只记录日志和内存，不真正发送
type SimulationChannel struct {
	log *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewSimulationChannel 创建模拟渠道
func NewSimulationChannel(log *zap.Logger) *SimulationChannel {
	return &SimulationChannel{log: log.Named("notifier")}
}

// Send 渲染并记录提醒
func (s *SimulationChannel) Send(ctx context.Context, alert *model.Alert) Result {
	if err := ctx.Err(); err != nil {
		return failed(err)
	}
	if !ValidAddress(alert.ContactEmail) {
		return skipped(alert)
	}

	msg := Render(alert)
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	s.log.Info("模拟发送提醒",
		zap.String("sale_id", alert.SaleID),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Float64("risk", alert.RiskProbability),
		zap.String("body", msg.Body),
	)
	return Result{Status: model.DeliverySent}
}

// Sent 返回已记录的提醒副本
func (s *SimulationChannel) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *SimulationChannel) Name() string { return ChannelEmail }

func (s *SimulationChannel) Mode() string { return config.ModeSimulation }
