package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dewei/CancelRadar/pkg/config"
	"github.com/dewei/CancelRadar/pkg/dispatcher"
	"github.com/dewei/CancelRadar/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingRunner struct {
	mu      sync.Mutex
	sources []dispatcher.Source
	err     error
}

func (r *recordingRunner) RunBatch(_ context.Context, source dispatcher.Source) (model.BatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
	if r.err != nil {
		return model.BatchResult{}, r.err
	}
	return model.BatchResult{Trigger: string(source), Total: 2, Attempted: 2, Sent: 2}, nil
}

func remindersConfig(schedule, tz string) config.RemindersConfig {
	return config.RemindersConfig{Schedule: schedule, Timezone: tz}
}

func TestNewScheduler_Spec(t *testing.T) {
	s, err := NewScheduler(remindersConfig("10:00", "UTC"), &recordingRunner{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "0 10 * * *", s.Spec())

	s, err = NewScheduler(remindersConfig("07:45", "America/Mexico_City"), &recordingRunner{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "45 7 * * *", s.Spec())
}

func TestNewScheduler_InvalidConfig(t *testing.T) {
	_, err := NewScheduler(remindersConfig("25:00", "UTC"), &recordingRunner{}, zap.NewNop())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = NewScheduler(remindersConfig("10:00", "Mars/Olympus"), &recordingRunner{}, zap.NewNop())
	assert.Error(t, err)
}

func TestScheduler_NextRunInConfiguredZone(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, err := NewScheduler(remindersConfig("10:30", "America/Mexico_City"), &recordingRunner{}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, s.Next().IsZero(), "no next run before start")

	s.Start()
	defer s.Stop()
	assert.True(t, s.Running())

	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	next := s.Next().In(loc)
	assert.Equal(t, 10, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.WithinDuration(t, time.Now(), next, 25*time.Hour)
}

func TestScheduler_RunNowUsesDueSoon(t *testing.T) {
	runner := &recordingRunner{}
	s, err := NewScheduler(remindersConfig("10:00", "UTC"), runner, zap.NewNop())
	require.NoError(t, err)

	res, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, []dispatcher.Source{dispatcher.DueSoon}, runner.sources)
}

func TestScheduler_ScheduledFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	runner := &recordingRunner{err: errors.New("store down")}
	s, err := NewScheduler(remindersConfig("10:00", "UTC"), runner, zap.New(core))
	require.NoError(t, err)

	s.runScheduled()

	failures := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, failures, 1)
	assert.Equal(t, "scheduler", failures[0].LoggerName)
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, err := NewScheduler(remindersConfig("10:00", "UTC"), &recordingRunner{}, zap.NewNop())
	require.NoError(t, err)

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
}
