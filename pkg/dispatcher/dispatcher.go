package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dewei/CancelRadar/pkg/messaging"
	"github.com/dewei/CancelRadar/pkg/metrics"
	"github.com/dewei/CancelRadar/pkg/model"
	"github.com/dewei/CancelRadar/pkg/notifier"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrCandidateSource 无法获取候选提醒，批次未开始
var ErrCandidateSource = errors.New("获取候选提醒失败")

// DefaultConcurrency 批次内并发发送数
const DefaultConcurrency = 4

// Source 候选来源
type Source string

const (
	Pending Source = "pending"  // 全部未发送
	DueSoon Source = "due_soon" // 销售日期临近的未发送
)

// AlertStore 批次需要的提醒存储能力
type AlertStore interface {
	ListPending(ctx context.Context) ([]*model.Alert, error)
	ListDueSoon(ctx context.Context, now time.Time) ([]*model.Alert, error)
	MarkSent(ctx context.Context, saleID string) (bool, error)
}

// AttemptLog 发送记录
type AttemptLog interface {
	Record(ctx context.Context, record *model.NotificationRecord) error
	Exhausted(ctx context.Context, saleIDs []string, maxAttempts int) (map[string]bool, error)
}

// Options 批次参数
type Options struct {
	Concurrency int
	MaxAttempts int // 0 表示不限
}

// Dispatcher 提醒派发器
type Dispatcher struct {
	store     AlertStore
	attempts  AttemptLog
	channel   notifier.Channel
	publisher messaging.Publisher
	opts      Options
	log       *zap.Logger
	now       func() time.Time
}

// New 创建派发器
func New(store AlertStore, attempts AttemptLog, channel notifier.Channel, publisher messaging.Publisher, opts Options, log *zap.Logger) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &Dispatcher{
		store:     store,
		attempts:  attempts,
		channel:   channel,
		publisher: publisher,
		opts:      opts,
		log:       log.Named("dispatcher"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunBatch 对候选提醒各发送一次。只有获取候选失败时返回错误，单条失败计入结果。
func (d *Dispatcher) RunBatch(ctx context.Context, source Source) (model.BatchResult, error) {
	start := time.Now()
	result := model.BatchResult{Trigger: string(source)}
	defer func() {
		metrics.BatchDuration.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())
	}()

	candidates, err := d.candidates(ctx, source)
	if err != nil {
		d.log.Error("获取候选提醒失败", zap.String("trigger", string(source)), zap.Error(err))
		return result, err
	}
	result.Total = len(candidates)

	candidates = d.dropExhausted(ctx, candidates, &result)

	// 已开始的发送不受取消影响，取消只阻止新的发送
	sendCtx := context.WithoutCancel(ctx)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.opts.Concurrency)

	for _, alert := range candidates {
		if ctx.Err() != nil {
			d.log.Warn("批次被取消，停止发送", zap.String("trigger", string(source)))
			break
		}
		g.Go(func() error {
			status := d.deliver(sendCtx, source, alert)
			mu.Lock()
			defer mu.Unlock()
			result.Attempted++
			switch status {
			case model.DeliverySent:
				result.Sent++
			case model.DeliverySkipped:
				result.Skipped++
			default:
				result.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	d.log.Info("提醒批次完成",
		zap.String("trigger", result.Trigger),
		zap.Int("total", result.Total),
		zap.Int("attempted", result.Attempted),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Int("exhausted", result.Exhausted),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (d *Dispatcher) candidates(ctx context.Context, source Source) ([]*model.Alert, error) {
	var (
		alerts []*model.Alert
		err    error
	)
	switch source {
	case Pending:
		alerts, err = d.store.ListPending(ctx)
	case DueSoon:
		alerts, err = d.store.ListDueSoon(ctx, d.now())
	default:
		return nil, fmt.Errorf("%w: 未知来源 %q", ErrCandidateSource, source)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCandidateSource, err)
	}
	return alerts, nil
}

// dropExhausted 去掉失败次数已达上限的提醒；查询失败时不过滤
func (d *Dispatcher) dropExhausted(ctx context.Context, alerts []*model.Alert, result *model.BatchResult) []*model.Alert {
	if d.attempts == nil || d.opts.MaxAttempts <= 0 || len(alerts) == 0 {
		return alerts
	}

	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.SaleID)
	}
	exhausted, err := d.attempts.Exhausted(ctx, ids, d.opts.MaxAttempts)
	if err != nil {
		d.log.Warn("统计发送次数失败，本批次不限制重试", zap.Error(err))
		return alerts
	}

	kept := alerts[:0:0]
	for _, a := range alerts {
		if exhausted[a.SaleID] {
			result.Exhausted++
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

// deliver 发送一条提醒并返回计入批次的状态
func (d *Dispatcher) deliver(ctx context.Context, source Source, alert *model.Alert) model.DeliveryStatus {
	res := d.channel.Send(ctx, alert)
	status := res.Status
	reason := res.Reason()

	if res.Sent() {
		changed, err := d.store.MarkSent(ctx, alert.SaleID)
		switch {
		case err != nil:
			d.log.Error("标记提醒已发送失败", zap.String("sale_id", alert.SaleID), zap.Error(err))
			status = model.DeliveryFailed
			reason = err.Error()
		case !changed:
			// 并发批次已先一步完成标记
			d.log.Info("提醒已被标记，不重复计数", zap.String("sale_id", alert.SaleID))
			status = model.DeliverySkipped
			reason = "已由其他批次标记"
		default:
			d.publish(ctx, source, alert)
		}
	} else {
		d.log.Warn("提醒未送达",
			zap.String("sale_id", alert.SaleID),
			zap.String("status", string(res.Status)),
			zap.String("reason", reason),
		)
	}

	d.record(ctx, alert, status, reason)
	metrics.RemindersDelivered.WithLabelValues(string(source), string(status)).Inc()
	return status
}

func (d *Dispatcher) record(ctx context.Context, alert *model.Alert, status model.DeliveryStatus, reason string) {
	if d.attempts == nil {
		return
	}
	err := d.attempts.Record(ctx, &model.NotificationRecord{
		SaleID:      alert.SaleID,
		Channel:     d.channel.Name(),
		Mode:        d.channel.Mode(),
		Status:      status,
		Error:       reason,
		AttemptedAt: d.now(),
	})
	if err != nil {
		d.log.Warn("保存发送记录失败", zap.String("sale_id", alert.SaleID), zap.Error(err))
	}
}

func (d *Dispatcher) publish(ctx context.Context, source Source, alert *model.Alert) {
	evt := messaging.ReminderSentEvent{
		SaleID:  alert.SaleID,
		Trigger: string(source),
		Mode:    d.channel.Mode(),
		SentAt:  d.now(),
	}
	if err := d.publisher.Publish(ctx, messaging.SubjectReminderSent, evt); err != nil {
		d.log.Warn("发布发送事件失败", zap.String("sale_id", alert.SaleID), zap.Error(err))
	}
}
