// pkg/model/prediction.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 模型使用的11个特征
const (
	FeatureAmount                = "monto_total"
	FeatureHighSeason            = "es_temporada_alta"
	FeatureBookingWeekday        = "dia_semana_reserva"
	FeatureCardPayment           = "metodo_pago_tarjeta"
	FeatureHasPackage            = "tiene_paquete"
	FeatureDurationDays          = "duracion_dias"
	FeatureDestinationCategory   = "destino_categoria"
	FeaturePriorPurchases        = "total_compras_previas"
	FeaturePriorCancellations    = "total_cancelaciones_previas"
	FeatureHistoricalCancelRate  = "tasa_cancelacion_historica"
	FeatureAveragePurchaseAmount = "monto_promedio_compras"
)

// FeatureNames 特征顺序与训练时一致
var FeatureNames = []string{
	FeatureAmount,
	FeatureHighSeason,
	FeatureBookingWeekday,
	FeatureCardPayment,
	FeatureHasPackage,
	FeatureDurationDays,
	FeatureDestinationCategory,
	FeaturePriorPurchases,
	FeaturePriorCancellations,
	FeatureHistoricalCancelRate,
	FeatureAveragePurchaseAmount,
}

// FeatureSnapshot 特征名 -> 数值
type FeatureSnapshot map[string]float64

// Missing 返回缺失的特征名
func (f FeatureSnapshot) Missing() []string {
	var missing []string
	for _, name := range FeatureNames {
		if _, ok := f[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Clone 复制快照
func (f FeatureSnapshot) Clone() FeatureSnapshot {
	out := make(FeatureSnapshot, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ScoredEvent 待评估的销售事件
type ScoredEvent struct {
	SaleID       string
	CustomerID   string
	ContactEmail string
	CustomerName string
	PackageName  string
	Destination  string
	Amount       decimal.Decimal
	SaleDate     *time.Time
	Features     FeatureSnapshot

	// 上游已计算的分数，为空时由评估器计算
	Probability    *float64
	Recommendation Recommendation
}

// HasSnapshot 是否携带完整的客户快照（只有完整快照才会落库）
func (e *ScoredEvent) HasSnapshot() bool {
	return e.ContactEmail != "" && e.CustomerName != "" && e.SaleDate != nil
}

// ScoreResult 评估结果
type ScoreResult struct {
	Probability    float64        `json:"probabilidad_cancelacion"`
	Recommendation Recommendation `json:"recomendacion"`
	RiskFactors    []string       `json:"factores_riesgo"`
}
