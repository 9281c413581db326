package scoring

import (
	"context"
	"math"
	"testing"

	"github.com/dewei/CancelRadar/pkg/config"
	"github.com/dewei/CancelRadar/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFeatures() model.FeatureSnapshot {
	return model.FeatureSnapshot{
		model.FeatureAmount:                1850,
		model.FeatureHighSeason:            1,
		model.FeatureBookingWeekday:        2,
		model.FeatureCardPayment:           0,
		model.FeatureHasPackage:            1,
		model.FeatureDurationDays:          7,
		model.FeatureDestinationCategory:   0,
		model.FeaturePriorPurchases:        3,
		model.FeaturePriorCancellations:    1,
		model.FeatureHistoricalCancelRate:  0.33,
		model.FeatureAveragePurchaseAmount: 1200,
	}
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		p    float64
		want model.Recommendation
	}{
		{0.0, model.RecommendationNoAction},
		{0.4999, model.RecommendationNoAction},
		{0.50, model.RecommendationManualReview},
		{0.69, model.RecommendationManualReview},
		{0.70, model.RecommendationSendReminder},
		{0.82, model.RecommendationSendReminder},
		{1.0, model.RecommendationSendReminder},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Recommend(tt.p), "p=%v", tt.p)
	}
}

func TestRiskFactors_DetectionOrder(t *testing.T) {
	f := sampleFeatures()
	f[model.FeaturePriorPurchases] = 0
	f[model.FeatureAmount] = 3200
	f[model.FeaturePriorCancellations] = 4
	f[model.FeatureDurationDays] = 14

	assert.Equal(t, []string{
		FactorUnconfirmedPayment,
		FactorHighCancelRate,
		FactorNewCustomer,
		FactorHighAmount,
		FactorRepeatCancellations,
		FactorLongTrip,
	}, RiskFactors(f))
}

func TestRiskFactors_NoneTriggered(t *testing.T) {
	f := sampleFeatures()
	f[model.FeatureCardPayment] = 1
	f[model.FeatureHistoricalCancelRate] = 0.1

	factors := RiskFactors(f)
	assert.NotNil(t, factors)
	assert.Empty(t, factors)
}

func TestLogisticModel_Evaluate(t *testing.T) {
	m := NewLogisticModel(config.ModelConfig{})

	res, err := m.Evaluate(context.Background(), sampleFeatures())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Probability, 0.0)
	assert.LessOrEqual(t, res.Probability, 1.0)
	assert.Equal(t, Recommend(res.Probability), res.Recommendation)
	assert.Equal(t, res.Probability, math.Round(res.Probability*10000)/10000)
	assert.Contains(t, res.RiskFactors, FactorUnconfirmedPayment)

	paid := sampleFeatures()
	paid[model.FeatureCardPayment] = 1
	resPaid, err := m.Evaluate(context.Background(), paid)
	require.NoError(t, err)
	assert.Less(t, resPaid.Probability, res.Probability, "card payment lowers risk")
}

func TestLogisticModel_ConfiguredWeights(t *testing.T) {
	m := NewLogisticModel(config.ModelConfig{
		Bias:    5,
		Weights: map[string]float64{model.FeatureAmount: 0},
	})

	res, err := m.Evaluate(context.Background(), sampleFeatures())
	require.NoError(t, err)
	assert.Equal(t, model.RecommendationSendReminder, res.Recommendation)
}

func TestLogisticModel_MissingFeature(t *testing.T) {
	m := NewLogisticModel(config.ModelConfig{})
	f := sampleFeatures()
	delete(f, model.FeatureDurationDays)

	_, err := m.Evaluate(context.Background(), f)
	require.ErrorIs(t, err, ErrInvalidFeatures)
	assert.Contains(t, err.Error(), model.FeatureDurationDays)
}

func TestLogisticModel_NaN(t *testing.T) {
	m := NewLogisticModel(config.ModelConfig{})
	f := sampleFeatures()
	f[model.FeatureAmount] = math.NaN()

	_, err := m.Evaluate(context.Background(), f)
	assert.ErrorIs(t, err, ErrInvalidFeatures)
}
