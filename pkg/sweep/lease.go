package sweep

import (
	"errors"
	"sync"
	"time"
)

// ErrSweepInProgress is returned when another run holds the lease.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Lease is a run-in-progress flag that expires after a bounded duration,
// so a run that never released it cannot block later runs forever.
type Lease struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	holder   string
	expireAt time.Time
}

// NewLease returns a lease that is held for at most ttl.
func NewLease(ttl time.Duration) *Lease {
	return &Lease{ttl: ttl, now: time.Now}
}

// Acquire takes the lease for holder. It fails with ErrSweepInProgress while
// another holder's lease is still live.
func (l *Lease) Acquire(holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.holder != "" && now.Before(l.expireAt) {
		return ErrSweepInProgress
	}
	l.holder = holder
	l.expireAt = now.Add(l.ttl)
	return nil
}

// Release gives the lease up if holder still owns it.
func (l *Lease) Release(holder string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder == holder {
		l.holder = ""
		l.expireAt = time.Time{}
	}
}

// Holder returns the current live holder, or "".
func (l *Lease) Holder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder == "" || !l.now().Before(l.expireAt) {
		return ""
	}
	return l.holder
}
