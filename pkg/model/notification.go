// pkg/model/notification.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryStatus 单次发送结果
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped" // 邮箱缺失或格式错误
)

// NotificationRecord 发送尝试记录，只追加，不修改 Alert
type NotificationRecord struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	SaleID      string         `gorm:"type:varchar(64);not null;index" json:"sale_id"`
	Channel     string         `gorm:"type:varchar(20);not null" json:"channel"` // email
	Mode        string         `gorm:"type:varchar(20);not null" json:"mode"`    // simulation, live
	Status      DeliveryStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Error       string         `json:"error,omitempty"`
	AttemptedAt time.Time      `gorm:"index" json:"attempted_at"`
}

func (n *NotificationRecord) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// TableName 自定义表名
func (NotificationRecord) TableName() string {
	return "notification_records"
}

// BatchResult 一次批量发送的汇总
type BatchResult struct {
	Trigger   string `json:"trigger"`
	Total     int    `json:"total"`
	Attempted int    `json:"attempted"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Exhausted int    `json:"exhausted"`
}
