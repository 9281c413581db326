// pkg/database/notification.go
package database

import (
	"context"
	"fmt"

	"github.com/dewei/CancelRadar/pkg/model"
	"gorm.io/gorm"
)

// NotificationDB 发送尝试记录
type NotificationDB struct {
	db *gorm.DB
}

// Notifications 返回发送记录存储
func (d *Database) Notifications() *NotificationDB {
	return &NotificationDB{db: d.db}
}

// Record 追加一条发送记录
func (n *NotificationDB) Record(ctx context.Context, record *model.NotificationRecord) error {
	if err := n.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("保存发送记录失败: %w", err)
	}
	return nil
}

// ListBySaleID 按时间顺序返回某笔销售的发送记录
func (n *NotificationDB) ListBySaleID(ctx context.Context, saleID string) ([]*model.NotificationRecord, error) {
	var records []*model.NotificationRecord
	err := n.db.WithContext(ctx).
		Where("sale_id = ?", saleID).
		Order("attempted_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询发送记录失败: %w", err)
	}
	return records, nil
}

// exhaustedBatchSize 单次 IN 查询绑定的销售ID上限，低于 SQLite 与 PostgreSQL 的参数上限
const exhaustedBatchSize = 500

// Exhausted 返回未成功尝试次数已达到 maxAttempts 的销售ID
func (n *NotificationDB) Exhausted(ctx context.Context, saleIDs []string, maxAttempts int) (map[string]bool, error) {
	exhausted := make(map[string]bool)
	if maxAttempts <= 0 || len(saleIDs) == 0 {
		return exhausted, nil
	}

	for start := 0; start < len(saleIDs); start += exhaustedBatchSize {
		end := min(start+exhaustedBatchSize, len(saleIDs))

		var rows []struct {
			SaleID   string
			Attempts int64
		}
		err := n.db.WithContext(ctx).
			Model(&model.NotificationRecord{}).
			Select("sale_id, COUNT(*) as attempts").
			Where("sale_id IN ? AND status <> ?", saleIDs[start:end], model.DeliverySent).
			Group("sale_id").
			Having("COUNT(*) >= ?", maxAttempts).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("统计发送尝试失败: %w", err)
		}

		for _, row := range rows {
			exhausted[row.SaleID] = true
		}
	}
	return exhausted, nil
}
