package triage

import (
	"context"
	"fmt"

	"github.com/dewei/CancelRadar/pkg/messaging"
	"github.com/dewei/CancelRadar/pkg/metrics"
	"github.com/dewei/CancelRadar/pkg/model"
	"github.com/dewei/CancelRadar/pkg/scoring"
	"go.uber.org/zap"
)

// AlertStore 入口需要的提醒存储能力
type AlertStore interface {
	CreateIfEligible(ctx context.Context, event *model.ScoredEvent, score model.ScoreResult) (*model.Alert, error)
	Threshold() float64
}

// Outcome 一次评估的结果
type Outcome struct {
	model.ScoreResult
	Alert *model.Alert
}

// AlertCreated 是否新建了提醒
func (o Outcome) AlertCreated() bool {
	return o.Alert != nil
}

// Service 预测入口服务
type Service struct {
	evaluator scoring.Evaluator
	store     AlertStore
	publisher messaging.Publisher
	log       *zap.Logger
}

// NewService 创建入口服务
func NewService(evaluator scoring.Evaluator, store AlertStore, publisher messaging.Publisher, log *zap.Logger) *Service {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &Service{
		evaluator: evaluator,
		store:     store,
		publisher: publisher,
		log:       log.Named("triage"),
	}
}

// Evaluate 评分、门控、落库并发布事件
func (s *Service) Evaluate(ctx context.Context, event *model.ScoredEvent) (Outcome, error) {
	score, err := s.score(ctx, event)
	if err != nil {
		return Outcome{}, err
	}
	metrics.PredictionsEvaluated.WithLabelValues(string(score.Recommendation)).Inc()

	out := Outcome{ScoreResult: score}
	if !event.HasSnapshot() {
		s.log.Debug("事件缺少客户快照，不落库", zap.String("sale_id", event.SaleID))
		return out, nil
	}

	alert, err := s.store.CreateIfEligible(ctx, event, score)
	if err != nil {
		return Outcome{}, fmt.Errorf("创建提醒失败: %w", err)
	}
	if alert == nil {
		if score.Probability >= s.store.Threshold() {
			metrics.AlertsDuplicate.Inc()
			s.log.Info("重复销售，忽略", zap.String("sale_id", event.SaleID))
		}
		return out, nil
	}

	metrics.AlertsCreated.Inc()
	out.Alert = alert
	s.log.Info("创建高风险提醒",
		zap.String("sale_id", alert.SaleID),
		zap.Float64("probability", alert.RiskProbability),
		zap.Strings("factors", alert.RiskFactors),
	)

	evt := messaging.AlertCreatedEvent{
		SaleID:         alert.SaleID,
		CustomerID:     alert.CustomerID,
		Probability:    alert.RiskProbability,
		Recommendation: string(alert.Recommendation),
		RiskFactors:    alert.RiskFactors,
		CreatedAt:      alert.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, messaging.SubjectAlertCreated, evt); err != nil {
		s.log.Warn("发布提醒事件失败", zap.String("sale_id", alert.SaleID), zap.Error(err))
	}
	return out, nil
}

// score 优先使用上游已算好的概率
func (s *Service) score(ctx context.Context, event *model.ScoredEvent) (model.ScoreResult, error) {
	if event.Probability != nil {
		p := *event.Probability
		if p < 0 || p > 1 {
			return model.ScoreResult{}, fmt.Errorf("%w: 概率 %v 超出 [0,1]", scoring.ErrInvalidFeatures, p)
		}
		rec := event.Recommendation
		if !rec.Valid() {
			rec = scoring.Recommend(p)
		}
		return model.ScoreResult{
			Probability:    p,
			Recommendation: rec,
			RiskFactors:    scoring.RiskFactors(event.Features),
		}, nil
	}

	score, err := s.evaluator.Evaluate(ctx, event.Features)
	if err != nil {
		return model.ScoreResult{}, fmt.Errorf("风险评估失败: %w", err)
	}
	return score, nil
}
