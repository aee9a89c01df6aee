package booking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_MutualExclusion(t *testing.T) {
	l := newLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.acquire(context.Background(), "t1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.size())
}

func TestLocker_KeysAreIndependent(t *testing.T) {
	l := newLocker()
	r1, err := l.acquire(context.Background(), "a")
	require.NoError(t, err)
	defer r1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r2, err := l.acquire(ctx, "b")
	require.NoError(t, err)
	r2()
	assert.Equal(t, 1, l.size())
}

func TestLocker_TimeoutReleasesReference(t *testing.T) {
	l := newLocker()
	release, err := l.acquire(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second call is a no-op
	assert.Equal(t, 0, l.size())
}
