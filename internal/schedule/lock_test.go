package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireIsExclusivePerPractitioner(t *testing.T) {
	locker := NewPractitionerLocker(50 * time.Millisecond)
	id := uuid.New()

	release, err := locker.Acquire(context.Background(), id)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), id)
	assert.ErrorIs(t, err, ErrLockBusy)

	release()

	release2, err := locker.Acquire(context.Background(), id)
	require.NoError(t, err)
	release2()
}

func TestAcquireDifferentPractitionersDoNotContend(t *testing.T) {
	locker := NewPractitionerLocker(50 * time.Millisecond)

	r1, err := locker.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	defer r1()

	r2, err := locker.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	defer r2()
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	locker := NewPractitionerLocker(time.Second)
	id := uuid.New()

	release, err := locker.Acquire(context.Background(), id)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, id)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithLockSerializesCriticalSections(t *testing.T) {
	locker := NewPractitionerLocker(2 * time.Second)
	id := uuid.New()

	var inSection int
	var maxInSection int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), id, func() error {
				mu.Lock()
				inSection++
				if inSection > maxInSection {
					maxInSection = inSection
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inSection--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInSection, "critical sections must not interleave")
}
