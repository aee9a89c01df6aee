package booking

import (
	"context"
	"sync"
)

// locker hands out one mutual-exclusion slot per table key. Slots are
// channel semaphores so acquisition can give up when ctx ends; a slot is
// dropped once no holder or waiter references it.
type locker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

func newLocker() *locker {
	return &locker{slots: make(map[string]*slot)}
}

// acquire blocks until key is free or ctx is done. The returned release must
// be called exactly once.
func (l *locker) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.sem
				l.unref(key, s)
			})
		}, nil
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}
}

func (l *locker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// size is the number of live slots.
func (l *locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
