package messaging

import "time"

// 事件主题
const (
	SubjectAlertCreated = "alerts.created"
	SubjectReminderSent = "reminders.sent"
)

// AlertCreatedEvent 新提醒事件
type AlertCreatedEvent struct {
	SaleID         string    `json:"venta_id"`
	CustomerID     string    `json:"cliente_id"`
	Probability    float64   `json:"probabilidad_cancelacion"`
	Recommendation string    `json:"recomendacion"`
	RiskFactors    []string  `json:"factores_riesgo"`
	CreatedAt      time.Time `json:"fecha_prediccion"`
}

// ReminderSentEvent 提醒发送事件
type ReminderSentEvent struct {
	SaleID  string    `json:"venta_id"`
	Trigger string    `json:"trigger"`
	Mode    string    `json:"mode"`
	SentAt  time.Time `json:"sent_at"`
}
