package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dewei/CancelRadar/pkg/database"
	"github.com/dewei/CancelRadar/pkg/messaging"
	"github.com/dewei/CancelRadar/pkg/model"
	"github.com/dewei/CancelRadar/pkg/notifier"
	"github.com/dewei/CancelRadar/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

// scriptedChannel fails for the configured sale ids and tracks concurrency.
type scriptedChannel struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls map[string]int
	delay time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newScriptedChannel(fail ...string) *scriptedChannel {
	c := &scriptedChannel{fail: map[string]bool{}, calls: map[string]int{}}
	for _, id := range fail {
		c.fail[id] = true
	}
	return c
}

func (c *scriptedChannel) Send(ctx context.Context, alert *model.Alert) notifier.Result {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		peak := c.maxInFlight.Load()
		if n <= peak || c.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[alert.SaleID]++
	if !notifier.ValidAddress(alert.ContactEmail) {
		return notifier.Result{Status: model.DeliverySkipped, Err: errors.New("bad address")}
	}
	if c.fail[alert.SaleID] {
		return notifier.Result{Status: model.DeliveryFailed, Err: errors.New("smtp 451")}
	}
	return notifier.Result{Status: model.DeliverySent}
}

func (c *scriptedChannel) Name() string { return notifier.ChannelEmail }
func (c *scriptedChannel) Mode() string { return "test" }

func (c *scriptedChannel) Calls(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func (c *scriptedChannel) Heal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = map[string]bool{}
}

type fixture struct {
	store   *database.AlertDB
	records *database.NotificationDB
	pub     *testutil.Publisher
}

func newFixture(t *testing.T, ids ...string) fixture {
	t.Helper()
	db := testutil.NewDatabase(t)
	f := fixture{
		store:   db.Alerts(database.AlertOptions{Threshold: 0.70}),
		records: db.Notifications(),
		pub:     &testutil.Publisher{},
	}
	for i, id := range ids {
		_, err := f.store.CreateIfEligible(t.Context(), testutil.Event(id, time.Hour), testutil.Score(0.90-float64(i)*0.01))
		require.NoError(t, err)
	}
	return f
}

func (f fixture) dispatcher(ch notifier.Channel, opts Options) *Dispatcher {
	return New(f.store, f.records, ch, f.pub, opts, zap.NewNop())
}

func TestRunBatch_IsolatesFailures(t *testing.T) {
	f := newFixture(t, "a", "b", "c", "d", "e")
	ch := newScriptedChannel("b", "d")
	ctx := t.Context()

	res, err := f.dispatcher(ch, Options{}).RunBatch(ctx, Pending)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 5, res.Attempted)
	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 2, res.Failed)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, 1, ch.Calls(id), "each candidate is attempted exactly once")
	}

	pending, err := f.store.ListPending(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, a := range pending {
		ids = append(ids, a.SaleID)
	}
	assert.ElementsMatch(t, []string{"b", "d"}, ids)

	history, err := f.records.ListBySaleID(ctx, "b")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.DeliveryFailed, history[0].Status)
	assert.Contains(t, history[0].Error, "451")

	assert.Len(t, f.pub.Subjects(), 3)
	for _, s := range f.pub.Subjects() {
		assert.Equal(t, messaging.SubjectReminderSent, s)
	}
}

func TestRunBatch_FailedAlertsRetriedNextBatch(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	ch := newScriptedChannel("b")
	d := f.dispatcher(ch, Options{})
	ctx := t.Context()

	_, err := d.RunBatch(ctx, Pending)
	require.NoError(t, err)

	ch.Heal()
	res, err := d.RunBatch(ctx, Pending)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, ch.Calls("a"), "sent alerts never resend")
	assert.Equal(t, 2, ch.Calls("b"))

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{Total: 3, Pending: 0, Sent: 3}, stats)

	again, err := d.RunBatch(ctx, Pending)
	require.NoError(t, err)
	assert.Equal(t, model.BatchResult{Trigger: string(Pending)}, again)
}

func TestRunBatch_InvalidAddressSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	event := testutil.Event("sin_email", time.Hour)
	event.ContactEmail = "no-valido"
	_, err := f.store.CreateIfEligible(ctx, event, testutil.Score(0.9))
	require.NoError(t, err)

	res, err := f.dispatcher(newScriptedChannel(), Options{}).RunBatch(ctx, Pending)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Sent)

	alert, err := f.store.GetBySaleID(ctx, "sin_email")
	require.NoError(t, err)
	assert.False(t, alert.ReminderSent)
}

func TestRunBatch_DueSoonOnlySendsWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	for id, in := range map[string]time.Duration{"soon": 3 * time.Hour, "later": 72 * time.Hour} {
		_, err := f.store.CreateIfEligible(ctx, testutil.Event(id, in), testutil.Score(0.8))
		require.NoError(t, err)
	}

	ch := newScriptedChannel()
	res, err := f.dispatcher(ch, Options{}).RunBatch(ctx, DueSoon)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, string(DueSoon), res.Trigger)
	assert.Equal(t, 1, ch.Calls("soon"))
	assert.Zero(t, ch.Calls("later"))
}

func TestRunBatch_MaxAttemptsExhausted(t *testing.T) {
	f := newFixture(t, "flaky", "ok")
	ch := newScriptedChannel("flaky")
	d := f.dispatcher(ch, Options{MaxAttempts: 2})
	ctx := t.Context()

	for i := 0; i < 2; i++ {
		_, err := d.RunBatch(ctx, Pending)
		require.NoError(t, err)
	}

	res, err := d.RunBatch(ctx, Pending)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Exhausted)
	assert.Zero(t, res.Attempted)
	assert.Equal(t, 2, ch.Calls("flaky"))

	alert, err := f.store.GetBySaleID(ctx, "flaky")
	require.NoError(t, err)
	assert.False(t, alert.ReminderSent, "exhausted alerts stay pending")
}

func TestRunBatch_ConcurrentBatchesCountEachTransitionOnce(t *testing.T) {
	ids := make([]string, 12)
	for i := range ids {
		ids[i] = fmt.Sprintf("v%02d", i)
	}
	f := newFixture(t, ids...)
	d := f.dispatcher(newScriptedChannel(), Options{Concurrency: 3})

	var (
		wg    sync.WaitGroup
		total atomic.Int64
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := d.RunBatch(context.Background(), Pending)
			assert.NoError(t, err)
			total.Add(int64(res.Sent))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, len(ids), total.Load())
	stats, err := f.store.Stats(t.Context())
	require.NoError(t, err)
	assert.EqualValues(t, len(ids), stats.Sent)
}

// memStore keeps alerts in memory for tests that do not need SQL.
type memStore struct {
	mu     sync.Mutex
	alerts  []*model.Alert
	err     error
	markErr error
}

func (m *memStore) ListPending(context.Context) ([]*model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*model.Alert
	for _, a := range m.alerts {
		if !a.ReminderSent {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) ListDueSoon(ctx context.Context, _ time.Time) ([]*model.Alert, error) {
	return m.ListPending(ctx)
}

func (m *memStore) MarkSent(_ context.Context, saleID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return false, m.markErr
	}
	for _, a := range m.alerts {
		if a.SaleID == saleID && !a.ReminderSent {
			a.ReminderSent = true
			return true, nil
		}
	}
	return false, nil
}

func memAlerts(n int) *memStore {
	m := &memStore{}
	for i := 0; i < n; i++ {
		m.alerts = append(m.alerts, &model.Alert{
			SaleID:       fmt.Sprintf("m%02d", i),
			ContactEmail: "cliente@example.com",
		})
	}
	return m
}

func TestRunBatch_BoundedConcurrencyNoLeaks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := memAlerts(20)
	ch := newScriptedChannel()
	ch.delay = 5 * time.Millisecond

	res, err := New(store, nil, ch, nil, Options{Concurrency: 3}, zap.NewNop()).RunBatch(context.Background(), Pending)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Sent)
	assert.LessOrEqual(t, ch.maxInFlight.Load(), int32(3))
	assert.Greater(t, ch.maxInFlight.Load(), int32(1))
}

func TestRunBatch_CandidateSourceError(t *testing.T) {
	store := &memStore{err: errors.New("connection refused")}
	ch := newScriptedChannel()

	res, err := New(store, nil, ch, nil, Options{}, zap.NewNop()).RunBatch(context.Background(), Pending)
	require.ErrorIs(t, err, ErrCandidateSource)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Zero(t, res.Attempted)
}

func TestRunBatch_UnknownSource(t *testing.T) {
	_, err := New(memAlerts(1), nil, newScriptedChannel(), nil, Options{}, zap.NewNop()).RunBatch(context.Background(), Source("weekly"))
	assert.ErrorIs(t, err, ErrCandidateSource)
}

func TestRunBatch_CancelledContextSendsNothing(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := memAlerts(5)
	ch := newScriptedChannel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(store, nil, ch, nil, Options{}, zap.NewNop()).RunBatch(ctx, Pending)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Zero(t, res.Attempted)
}

func TestRunBatch_MarkSentFailureRecordedAsFailed(t *testing.T) {
	store := memAlerts(1)
	store.markErr = errors.New("database is locked")
	records := testutil.NewDatabase(t).Notifications()
	pub := &testutil.Publisher{}
	ctx := t.Context()

	res, err := New(store, records, newScriptedChannel(), pub, Options{}, zap.NewNop()).RunBatch(ctx, Pending)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Sent)
	assert.Empty(t, pub.Events())

	history, err := records.ListBySaleID(ctx, "m00")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.DeliveryFailed, history[0].Status)
	assert.Contains(t, history[0].Error, "database is locked")

	// 失败记录计入重试上限
	exhausted, err := records.Exhausted(ctx, []string{"m00"}, 1)
	require.NoError(t, err)
	assert.True(t, exhausted["m00"])
}
