package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dewei/CancelRadar/pkg/config"
	"github.com/dewei/CancelRadar/pkg/dispatcher"
	"github.com/dewei/CancelRadar/pkg/model"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner 执行一次提醒批次
type Runner interface {
	RunBatch(ctx context.Context, source dispatcher.Source) (model.BatchResult, error)
}

// Scheduler 任务调度器，只有一个每日任务
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	spec   string
	entry  cron.EntryID
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// NewScheduler 创建任务调度器
func NewScheduler(cfg config.RemindersConfig, runner Runner, log *zap.Logger) (*Scheduler, error) {
	hour, minute, err := cfg.HourMinute()
	if err != nil {
		return nil, err
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("加载时区 %s 失败: %w", tz, err)
	}

	log = log.Named("scheduler")
	cl := cronLogger{log: log.Sugar()}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   c,
		runner: runner,
		spec:   fmt.Sprintf("%d %d * * *", minute, hour),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}

	// 每日定时发送即将到期的提醒
	s.entry, err = c.AddFunc(s.spec, s.runScheduled)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("注册定时任务失败: %w", err)
	}
	return s, nil
}

// Spec 返回 cron 表达式
func (s *Scheduler) Spec() string {
	return s.spec
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.log.Info("调度器已启动", zap.String("spec", s.spec), zap.Time("next", s.Next()))
}

// Stop 停止调度器，等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.cancel()
		return
	}
	s.started = false
	<-s.cron.Stop().Done()
	s.cancel()
	s.log.Info("调度器已停止")
}

// Running 调度器是否在运行
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Next 下一次执行时间，未启动时为零值
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// RunNow 立即执行一次定时任务的内容
func (s *Scheduler) RunNow(ctx context.Context) (model.BatchResult, error) {
	return s.runner.RunBatch(ctx, dispatcher.DueSoon)
}

func (s *Scheduler) runScheduled() {
	res, err := s.RunNow(s.ctx)
	if err != nil {
		// 下一次触发会重试
		s.log.Error("定时提醒批次失败", zap.Error(err))
		return
	}
	s.log.Info("定时提醒批次完成",
		zap.Int("sent", res.Sent),
		zap.Int("total", res.Total),
		zap.Time("next", s.Next()),
	)
}

// cronLogger 把 cron 日志转到 zap
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
