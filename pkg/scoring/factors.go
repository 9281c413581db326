package scoring

import "github.com/dewei/CancelRadar/pkg/model"

// 风险因素文案
const (
	FactorUnconfirmedPayment  = "Método de pago no confirmado"
	FactorHighCancelRate      = "Alta tasa de cancelaciones previas (>30%)"
	FactorNewCustomer         = "Cliente nuevo (sin historial)"
	FactorHighAmount          = "Monto de venta elevado (>$2500)"
	FactorRepeatCancellations = "Historial con múltiples cancelaciones"
	FactorLongTrip            = "Viaje de larga duración (>10 días)"
)

// RiskFactors 按检测顺序列出触发的风险因素（不按重要性排序）
func RiskFactors(f model.FeatureSnapshot) []string {
	factors := []string{}

	if f[model.FeatureCardPayment] == 0 {
		factors = append(factors, FactorUnconfirmedPayment)
	}
	if f[model.FeatureHistoricalCancelRate] > 0.3 {
		factors = append(factors, FactorHighCancelRate)
	}
	if f[model.FeaturePriorPurchases] == 0 {
		factors = append(factors, FactorNewCustomer)
	}
	if f[model.FeatureAmount] > 2500 {
		factors = append(factors, FactorHighAmount)
	}
	if f[model.FeaturePriorCancellations] > 2 {
		factors = append(factors, FactorRepeatCancellations)
	}
	if f[model.FeatureDurationDays] > 10 {
		factors = append(factors, FactorLongTrip)
	}

	return factors
}
