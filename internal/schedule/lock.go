package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLockBusy is returned when a practitioner's schedule lock could not
// be acquired within the wait budget.
var ErrLockBusy = errors.New("schedule lock not acquired")

// PractitionerLocker serializes booking and rescheduling against a
// single practitioner's appointment set. Operations on different
// practitioners proceed in parallel; operations on the same
// practitioner queue up to the wait budget and then fail rather than
// block indefinitely.
type PractitionerLocker struct {
	mu         sync.Mutex
	slots      map[uuid.UUID]chan struct{}
	waitBudget time.Duration
}

func NewPractitionerLocker(waitBudget time.Duration) *PractitionerLocker {
	if waitBudget <= 0 {
		waitBudget = 5 * time.Second
	}
	return &PractitionerLocker{
		slots:      make(map[uuid.UUID]chan struct{}),
		waitBudget: waitBudget,
	}
}

func (l *PractitionerLocker) slot(id uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[id] = s
	}
	return s
}

// Acquire takes the practitioner's lock, waiting at most the configured
// budget. The returned release function must be called exactly once.
func (l *PractitionerLocker) Acquire(ctx context.Context, practitionerID uuid.UUID) (release func(), err error) {
	s := l.slot(practitionerID)

	timer := time.NewTimer(l.waitBudget)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-s })
		}, nil
	case <-timer.C:
		return nil, ErrLockBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WithLock runs fn while holding the practitioner's lock.
func (l *PractitionerLocker) WithLock(ctx context.Context, practitionerID uuid.UUID, fn func() error) error {
	release, err := l.Acquire(ctx, practitionerID)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
