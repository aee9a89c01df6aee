package notify

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu    sync.Mutex
	calls []Notification
	err   error
}

func (s *recordingSink) Notify(ctx context.Context, participantIDs []string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Notification{ParticipantIDs: participantIDs, Message: message})
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// blockingSink holds every delivery until release is closed.
type blockingSink struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingSink) Notify(ctx context.Context, participantIDs []string, message string) error {
	s.started <- struct{}{}
	<-s.release
	return nil
}

func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, DispatcherOptions{Workers: 2, QueueSize: 16})

	ids := []string{"p1", "p2"}
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Notify(context.Background(), ids, "paired"))
	}
	ids[0] = "mutated"

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 5, sink.count())
	assert.Equal(t, []string{"p1", "p2"}, sink.calls[0].ParticipantIDs)

	stats := d.GetStats()
	assert.Equal(t, 5, stats["delivered"])
	assert.Equal(t, 0, stats["dropped"])

	assert.Error(t, d.Notify(context.Background(), ids, "late"))
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	sink := &blockingSink{started: make(chan struct{}, 4), release: make(chan struct{})}
	d := NewDispatcher(sink, DispatcherOptions{Workers: 1, QueueSize: 1})

	require.NoError(t, d.Notify(context.Background(), []string{"a"}, "1"))
	<-sink.started // worker is busy with the first one

	require.NoError(t, d.Notify(context.Background(), []string{"b"}, "2"))
	require.NoError(t, d.Notify(context.Background(), []string{"c"}, "3"))

	close(sink.release)
	require.NoError(t, d.Close(context.Background()))

	stats := d.GetStats()
	assert.Equal(t, 2, stats["delivered"])
	assert.Equal(t, 1, stats["dropped"])
}

func TestDispatcher_CloseHonoursContext(t *testing.T) {
	sink := &blockingSink{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := NewDispatcher(sink, DispatcherOptions{Workers: 1, QueueSize: 1})
	require.NoError(t, d.Notify(context.Background(), []string{"a"}, "1"))
	<-sink.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(sink.release)
}

func TestDispatcher_CountsFailures(t *testing.T) {
	sink := &recordingSink{err: errors.New("smtp down")}
	d := NewDispatcher(sink, DispatcherOptions{})
	require.NoError(t, d.Notify(context.Background(), []string{"a"}, "1"))
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 1, d.GetStats()["failed"])
}

func TestMulti_FirstErrorAfterAllSinks(t *testing.T) {
	failing := &recordingSink{err: errors.New("first")}
	ok := &recordingSink{}
	m := Multi{failing, ok, &recordingSink{err: errors.New("second")}}

	err := m.Notify(context.Background(), []string{"a"}, "hi")
	assert.EqualError(t, err, "first")
	assert.Equal(t, 1, ok.count())
}

func TestLogNotifier_RespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, LogNotifier{}.Notify(ctx, []string{"a"}, "hi"))
	cancel()
	assert.ErrorIs(t, LogNotifier{}.Notify(ctx, []string{"a"}, "hi"), context.Canceled)
}

func TestRedisNotifier_NilClientIsNoop(t *testing.T) {
	var n *RedisNotifier
	assert.NoError(t, n.Notify(context.Background(), []string{"a"}, "hi"))
	assert.NoError(t, NewRedisNotifier(nil).Notify(context.Background(), []string{"a"}, "hi"))
}

// Runs only when REDIS_ADDR points at a disposable Redis.
func TestRedisNotifier_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	list := "singles:test:" + t.Name()
	require.NoError(t, rdb.Del(ctx, list).Err())
	t.Cleanup(func() { rdb.Del(context.Background(), list) })

	sub := rdb.Subscribe(ctx, list)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n := NewRedisNotifier(rdb, WithList(list), WithChannel(list), WithMaxLen(2))
	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, n.Notify(ctx, []string{"p1", "p2"}, msg))
	}

	items, err := rdb.LRange(ctx, list, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Contains(t, items[1], `"message":"three"`)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"participant_ids":["p1","p2"]`)
}
