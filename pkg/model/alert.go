// pkg/model/alert.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Recommendation 处置建议枚举
type Recommendation string

const (
	RecommendationNoAction     Recommendation = "no_action"
	RecommendationManualReview Recommendation = "manual_review"
	RecommendationSendReminder Recommendation = "send_reminder"
)

// Valid 是否为已知建议
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationNoAction, RecommendationManualReview, RecommendationSendReminder:
		return true
	}
	return false
}

// Alert 高风险销售提醒，sale_id 全局唯一
type Alert struct {
	ID         string `gorm:"type:varchar(36);primaryKey" json:"id"`
	SaleID     string `gorm:"type:varchar(64);not null;uniqueIndex" json:"sale_id"`
	CustomerID string `gorm:"type:varchar(64);not null;index" json:"customer_id"`

	// 创建时的快照，之后不再修改
	ContactEmail string          `gorm:"type:varchar(255)" json:"contact_email"`
	CustomerName string          `json:"customer_name"`
	PackageName  string          `json:"package_name"`
	Destination  string          `json:"destination"`
	Amount       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	SaleDate     time.Time       `gorm:"index" json:"sale_date"`

	RiskProbability float64                             `gorm:"index" json:"risk_probability"`
	Recommendation  Recommendation                      `gorm:"type:varchar(20);not null" json:"recommendation"`
	RiskFactors     datatypes.JSONSlice[string]         `json:"risk_factors"`
	FeatureSnapshot datatypes.JSONType[FeatureSnapshot] `json:"feature_snapshot"`

	CreatedAt      time.Time  `json:"created_at"`
	ReminderSent   bool       `gorm:"not null;default:false;index" json:"reminder_sent"`
	ReminderSentAt *time.Time `json:"reminder_sent_at"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// TableName 自定义表名
func (Alert) TableName() string {
	return "alerts"
}

// Features 返回特征快照
func (a *Alert) Features() FeatureSnapshot {
	return a.FeatureSnapshot.Data()
}

// AlertView 列表接口的扁平投影
type AlertView struct {
	SaleID         string         `json:"venta_id"`
	CustomerID     string         `json:"cliente_id"`
	Email          string         `json:"email"`
	Name           string         `json:"nombre"`
	Package        string         `json:"paquete"`
	Destination    string         `json:"destino"`
	Amount         float64        `json:"monto"`
	Probability    float64        `json:"probabilidad"`
	Recommendation Recommendation `json:"recomendacion"`
	CreatedAt      time.Time      `json:"fecha_prediccion"`
}

// View 生成扁平投影
func (a *Alert) View() AlertView {
	amount, _ := a.Amount.Float64()
	return AlertView{
		SaleID:         a.SaleID,
		CustomerID:     a.CustomerID,
		Email:          a.ContactEmail,
		Name:           a.CustomerName,
		Package:        a.PackageName,
		Destination:    a.Destination,
		Amount:         amount,
		Probability:    a.RiskProbability,
		Recommendation: a.Recommendation,
		CreatedAt:      a.CreatedAt,
	}
}

// Stats 提醒统计
type Stats struct {
	Total   int64 `json:"total_predicciones"`
	Pending int64 `json:"recordatorios_pendientes"`
	Sent    int64 `json:"recordatorios_enviados"`
}
