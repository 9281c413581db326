package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/dewei/CancelRadar/pkg/config"
	"github.com/dewei/CancelRadar/pkg/database"
	"github.com/dewei/CancelRadar/pkg/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// NewDatabase 打开独立的内存 SQLite 数据库并完成迁移
func NewDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=ON", uuid.NewString()),
	})
	require.NoError(t, err, "打开内存数据库失败")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Features 老客户的完整特征快照
func Features() model.FeatureSnapshot {
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

// Event 构建完整事件，销售日期为当前时间加 saleIn
func Event(saleID string, saleIn time.Duration) *model.ScoredEvent {
	saleDate := time.Now().UTC().Add(saleIn).Truncate(time.Second)
	return &model.ScoredEvent{
		SaleID:       saleID,
		CustomerID:   "cli_" + saleID,
		ContactEmail: "maria@example.com",
		CustomerName: "María González",
		PackageName:  "Caribe Paradisíaco",
		Destination:  "Cancún",
		Amount:       decimal.NewFromFloat(1850),
		SaleDate:     &saleDate,
		Features:     Features(),
	}
}

// Score 按概率构建评估结果
func Score(p float64) model.ScoreResult {
	rec := model.RecommendationNoAction
	switch {
	case p >= 0.70:
		rec = model.RecommendationSendReminder
	case p >= 0.50:
		rec = model.RecommendationManualReview
	}
	return model.ScoreResult{
		Probability:    p,
		Recommendation: rec,
		RiskFactors:    []string{"Método de pago no confirmado"},
	}
}
