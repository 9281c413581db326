// pkg/database/alert.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dewei/CancelRadar/pkg/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrAlertNotFound 提醒不存在
	ErrAlertNotFound = errors.New("提醒不存在")
	// ErrIncompleteEvent 事件缺少落库所需的快照字段
	ErrIncompleteEvent = errors.New("事件快照不完整")
)

// DefaultDueWindow 即将到期的窗口
const DefaultDueWindow = 24 * time.Hour

// AlertOptions 提醒存储参数
type AlertOptions struct {
	Threshold float64
	DueWindow time.Duration
}

// AlertDB 提醒存储，唯一允许修改 Alert 状态的组件
type AlertDB struct {
	db        *gorm.DB
	threshold float64
	dueWindow time.Duration
	now       func() time.Time
}

// Alerts 返回提醒存储
func (d *Database) Alerts(opts AlertOptions) *AlertDB {
	if opts.DueWindow <= 0 {
		opts.DueWindow = DefaultDueWindow
	}
	return &AlertDB{
		db:        d.db,
		threshold: opts.Threshold,
		dueWindow: opts.DueWindow,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Threshold 返回生效的风险阈值
func (a *AlertDB) Threshold() float64 {
	return a.threshold
}

// CreateIfEligible 超过阈值且 sale_id 未出现过时创建提醒。
// 低于阈值或重复时返回 nil, nil；去重依赖 sale_id 唯一索引上的 ON CONFLICT DO NOTHING。
func (a *AlertDB) CreateIfEligible(ctx context.Context, event *model.ScoredEvent, score model.ScoreResult) (*model.Alert, error) {
	if score.Probability < a.threshold {
		return nil, nil
	}
	if event.SaleDate == nil {
		return nil, fmt.Errorf("%w: %s 缺少销售日期", ErrIncompleteEvent, event.SaleID)
	}

	factors := score.RiskFactors
	if factors == nil {
		factors = []string{}
	}

	alert := &model.Alert{
		SaleID:          event.SaleID,
		CustomerID:      event.CustomerID,
		ContactEmail:    event.ContactEmail,
		CustomerName:    event.CustomerName,
		PackageName:     event.PackageName,
		Destination:     event.Destination,
		Amount:          event.Amount,
		SaleDate:        event.SaleDate.UTC(),
		RiskProbability: score.Probability,
		Recommendation:  score.Recommendation,
		RiskFactors:     datatypes.JSONSlice[string](factors),
		FeatureSnapshot: datatypes.NewJSONType(event.Features.Clone()),
		CreatedAt:       a.now(),
		ReminderSent:    false,
	}

	result := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sale_id"}},
			DoNothing: true,
		}).
		Create(alert)
	if result.Error != nil {
		return nil, fmt.Errorf("保存提醒失败: %w", result.Error)
	}

	// 没有插入任何行说明 sale_id 已存在
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return alert, nil
}

// GetBySaleID 按销售ID查询
func (a *AlertDB) GetBySaleID(ctx context.Context, saleID string) (*model.Alert, error) {
	var alert model.Alert
	err := a.db.WithContext(ctx).First(&alert, "sale_id = ?", saleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("获取提醒失败: %w", err)
	}
	return &alert, nil
}

// ListPending 未发送提醒，按风险从高到低
func (a *AlertDB) ListPending(ctx context.Context) ([]*model.Alert, error) {
	var alerts []*model.Alert
	err := a.db.WithContext(ctx).
		Where("reminder_sent = ?", false).
		Order("risk_probability DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("查询待发送提醒失败: %w", err)
	}
	return alerts, nil
}

// ListDueSoon 销售日期落在 [now, now+window] 内的未发送提醒
func (a *AlertDB) ListDueSoon(ctx context.Context, now time.Time) ([]*model.Alert, error) {
	start := now.UTC()
	end := start.Add(a.dueWindow)

	var alerts []*model.Alert
	err := a.db.WithContext(ctx).
		Where("reminder_sent = ?", false).
		Where("sale_date >= ? AND sale_date <= ?", start, end).
		Order("risk_probability DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("查询即将到期提醒失败: %w", err)
	}
	return alerts, nil
}

// MarkSent 仅当提醒存在且仍未发送时标记为已发送，返回是否发生了状态变化
func (a *AlertDB) MarkSent(ctx context.Context, saleID string) (bool, error) {
	result := a.db.WithContext(ctx).
		Model(&model.Alert{}).
		Where("sale_id = ? AND reminder_sent = ?", saleID, false).
		Updates(map[string]interface{}{
			"reminder_sent":    true,
			"reminder_sent_at": a.now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("标记提醒已发送失败: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Stats 统计提醒数量
func (a *AlertDB) Stats(ctx context.Context) (model.Stats, error) {
	var rows []struct {
		ReminderSent bool
		Count        int64
	}

	err := a.db.WithContext(ctx).
		Model(&model.Alert{}).
		Select("reminder_sent, COUNT(*) as count").
		Group("reminder_sent").
		Find(&rows).Error
	if err != nil {
		return model.Stats{}, fmt.Errorf("统计提醒失败: %w", err)
	}

	var stats model.Stats
	for _, row := range rows {
		if row.ReminderSent {
			stats.Sent += row.Count
		} else {
			stats.Pending += row.Count
		}
	}
	stats.Total = stats.Pending + stats.Sent
	return stats, nil
}
