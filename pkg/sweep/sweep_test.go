package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-redact/internal/engine"
	"github.com/celerix-dev/celerix-redact/pkg/accounts"
	"github.com/celerix-dev/celerix-redact/pkg/catalog"
	"github.com/celerix-dev/celerix-redact/pkg/eraser"
	"github.com/celerix-dev/celerix-redact/pkg/policy"
)

type recordingEraser struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]error
	dir    *accounts.Memory
	ids    map[string]int64
}

func (r *recordingEraser) Erase(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, email)
	if err := r.failOn[email]; err != nil {
		return err
	}
	if r.dir != nil {
		r.dir.ClearAddresses(r.ids[email])
	}
	return nil
}

func fixture(t *testing.T, enabled *bool) (*policy.Store, *accounts.Memory, *recordingEraser) {
	t.Helper()
	ms := engine.NewMemStore(nil, nil)
	toggles := policy.NewStore(ms.Site("shop"))
	if enabled != nil {
		require.NoError(t, toggles.SetToggle(catalog.SweepToggleKey, *enabled))
	}

	dir := accounts.NewMemory()
	ids := map[string]int64{}
	for id, email := range map[int64]string{1: "one@example.com", 2: "two@example.com", 3: "three@example.com"} {
		dir.PutAccount(id, email)
		dir.SetMeta(id, "billing_address_1", "1 Main St")
		ids[email] = id
	}
	return toggles, dir, &recordingEraser{dir: dir, ids: ids, failOn: map[string]error{}}
}

func boolp(b bool) *bool { return &b }

func TestRun_DisabledByDefault(t *testing.T) {
	toggles, dir, er := fixture(t, nil)

	report, err := New(toggles, dir, er).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Enabled)
	assert.Empty(t, er.calls)
	assert.NotEmpty(t, report.RunID)
}

func TestRun_DisabledExplicitly(t *testing.T) {
	toggles, dir, er := fixture(t, boolp(false))

	_, err := New(toggles, dir, er).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, er.calls)
}

func TestRun_ErasesInLookupOrder(t *testing.T) {
	toggles, dir, er := fixture(t, boolp(true))

	report, err := New(toggles, dir, er).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Enabled)
	assert.Equal(t, 3, report.Accounts)
	assert.Equal(t, 3, report.Erased)
	assert.Empty(t, report.Failures)
	assert.Equal(t, []string{"one@example.com", "two@example.com", "three@example.com"}, er.calls)
}

func TestRun_PartialFailure(t *testing.T) {
	toggles, dir, er := fixture(t, boolp(true))
	er.failOn["two@example.com"] = errors.New("host returned 500")

	report, err := New(toggles, dir, er).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"one@example.com", "two@example.com", "three@example.com"}, er.calls)
	assert.Equal(t, 2, report.Erased)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, int64(2), report.Failures[0].AccountID)
	assert.Equal(t, "erase", report.Failures[0].Stage)
}

func TestRun_IdempotentByEffect(t *testing.T) {
	toggles, dir, er := fixture(t, boolp(true))
	s := New(toggles, dir, er)

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	er.calls = nil

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Accounts)
	assert.Empty(t, er.calls)
}

func TestRun_UnresolvableAccountIsPerAccountFailure(t *testing.T) {
	toggles, dir, er := fixture(t, boolp(true))
	dir.SetMeta(9, "shipping_city", "Nowhere") // no user record
	dir.PutAccount(10, "")
	dir.SetMeta(10, "billing_phone", "555")

	report, err := New(toggles, dir, er).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Accounts)
	assert.Equal(t, 3, report.Erased)
	require.Len(t, report.Failures, 2)
	for _, f := range report.Failures {
		assert.Equal(t, "resolve", f.Stage)
	}
}

type failingLookup struct{ accounts.Lookup }

func (failingLookup) AccountsWithSavedAddress(context.Context) ([]int64, error) {
	return nil, errors.New("connection refused")
}

func TestRun_LookupUnavailableIsFatal(t *testing.T) {
	toggles, _, er := fixture(t, boolp(true))

	_, err := New(toggles, failingLookup{}, er).Run(context.Background())
	assert.Error(t, err)
	assert.Empty(t, er.calls)
}

type brokenToggles struct{}

func (brokenToggles) SweepEnabled() (bool, error) {
	return false, policy.ErrStoreUnavailable
}

func TestRun_StoreUnavailableIsFatal(t *testing.T) {
	_, dir, er := fixture(t, nil)

	_, err := New(brokenToggles{}, dir, er).Run(context.Background())
	assert.ErrorIs(t, err, policy.ErrStoreUnavailable)
}

func TestRun_ConcurrentRunsExcluded(t *testing.T) {
	toggles, dir, _ := fixture(t, boolp(true))

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	blocking := eraser.Func(func(ctx context.Context, email string) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	})
	s := New(toggles, dir, blocking)

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		done <- err
	}()

	<-entered
	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(release)
	require.NoError(t, <-done)

	// Lease released after completion.
	_, err = s.Run(context.Background())
	assert.NoError(t, err)
}

func TestRun_RateLimitHonoursContext(t *testing.T) {
	toggles, dir, er := fixture(t, boolp(true))
	s := New(toggles, dir, er, WithRateLimit(0.001))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := s.Run(ctx)
	// The first call passes on the initial burst, the rest wait past the deadline.
	if err == nil {
		assert.Equal(t, 1, report.Erased)
		assert.Len(t, report.Failures, 2)
	} else {
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.LessOrEqual(t, len(er.calls), 1)
}

func TestCount(t *testing.T) {
	toggles, dir, er := fixture(t, nil)

	n, err := New(toggles, dir, er).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLease(t *testing.T) {
	now := time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC)
	l := NewLease(time.Minute)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Acquire("a"))
	assert.Equal(t, "a", l.Holder())
	assert.ErrorIs(t, l.Acquire("b"), ErrSweepInProgress)

	// A stale holder cannot release someone else's lease.
	l.Release("b")
	assert.Equal(t, "a", l.Holder())

	// Expired leases can be taken over.
	now = now.Add(2 * time.Minute)
	assert.Empty(t, l.Holder())
	require.NoError(t, l.Acquire("b"))
	assert.Equal(t, "b", l.Holder())

	l.Release("b")
	assert.Empty(t, l.Holder())
	require.NoError(t, l.Acquire("c"))
}

func TestSchedule_StopsOnCancel(t *testing.T) {
	toggles, dir, er := fixture(t, boolp(true))
	s := New(toggles, dir, er)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Schedule(ctx, s, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		er.mu.Lock()
		defer er.mu.Unlock()
		return len(er.calls) >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Schedule did not return after cancel")
	}
}
