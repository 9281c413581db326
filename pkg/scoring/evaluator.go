package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dewei/CancelRadar/pkg/config"
	"github.com/dewei/CancelRadar/pkg/model"
)

// ErrInvalidFeatures 特征缺失或无效
var ErrInvalidFeatures = errors.New("特征无效")

// 建议分档
const (
	ReminderBand     = 0.70
	ManualReviewBand = 0.50
)

// Evaluator 风险评估器
type Evaluator interface {
	Evaluate(ctx context.Context, features model.FeatureSnapshot) (model.ScoreResult, error)
}

// LogisticModel 逻辑回归评估器，系数离线训练后写入配置
type LogisticModel struct {
	bias    float64
	weights map[string]float64
}

// defaultWeights 随服务发布的默认系数
var defaultWeights = map[string]float64{
	model.FeatureAmount:                0.00035,
	model.FeatureHighSeason:            0.45,
	model.FeatureBookingWeekday:        0.02,
	model.FeatureCardPayment:           -1.35,
	model.FeatureHasPackage:            -0.20,
	model.FeatureDurationDays:          0.08,
	model.FeatureDestinationCategory:   0.15,
	model.FeaturePriorPurchases:        -0.18,
	model.FeaturePriorCancellations:    0.55,
	model.FeatureHistoricalCancelRate:  2.10,
	model.FeatureAveragePurchaseAmount: -0.0002,
}

const defaultBias = -1.05

// NewLogisticModel 创建评估器，未配置的系数使用默认值
func NewLogisticModel(cfg config.ModelConfig) *LogisticModel {
	weights := make(map[string]float64, len(defaultWeights))
	for name, w := range defaultWeights {
		weights[name] = w
	}
	for name, w := range cfg.Weights {
		weights[name] = w
	}

	bias := cfg.Bias
	if bias == 0 && len(cfg.Weights) == 0 {
		bias = defaultBias
	}

	return &LogisticModel{bias: bias, weights: weights}
}

// Evaluate 计算取消概率、建议和风险因素
func (m *LogisticModel) Evaluate(ctx context.Context, features model.FeatureSnapshot) (model.ScoreResult, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoreResult{}, err
	}
	if missing := features.Missing(); len(missing) > 0 {
		return model.ScoreResult{}, fmt.Errorf("%w: 缺少 %s", ErrInvalidFeatures, strings.Join(missing, ", "))
	}

	z := m.bias
	for _, name := range model.FeatureNames {
		v := features[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.ScoreResult{}, fmt.Errorf("%w: %s=%v", ErrInvalidFeatures, name, v)
		}
		z += m.weights[name] * v
	}

	p := Round(1 / (1 + math.Exp(-z)))
	return model.ScoreResult{
		Probability:    p,
		Recommendation: Recommend(p),
		RiskFactors:    RiskFactors(features),
	}, nil
}

// Recommend 按概率分档给出建议
func Recommend(p float64) model.Recommendation {
	switch {
	case p >= ReminderBand:
		return model.RecommendationSendReminder
	case p >= ManualReviewBand:
		return model.RecommendationManualReview
	default:
		return model.RecommendationNoAction
	}
}

// Round 保留4位小数
func Round(p float64) float64 {
	return math.Round(p*10000) / 10000
}
