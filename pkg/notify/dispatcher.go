package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Dispatcher decouples notification delivery from the caller: Notify only
// enqueues, and worker goroutines hand each notification to the sink.
// A full queue drops the notification instead of blocking.
type Dispatcher struct {
	sink    Notifier
	queue   chan Notification
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	stats struct {
		sync.Mutex
		delivered int
		failed    int
		dropped   int
	}
}

// DispatcherOptions 调度器配置
type DispatcherOptions struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// NewDispatcher starts opts.Workers goroutines delivering to sink.
func NewDispatcher(sink Notifier, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan Notification, opts.QueueSize),
		timeout: opts.SendTimeout,
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Notify implements Notifier. It never blocks and only fails after Close.
func (d *Dispatcher) Notify(ctx context.Context, participantIDs []string, message string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("notification dispatcher is closed")
	}

	n := Notification{
		ParticipantIDs: append([]string(nil), participantIDs...),
		Message:        message,
		CreatedAt:      time.Now().UTC(),
	}
	select {
	case d.queue <- n:
		return nil
	default:
		d.stats.Lock()
		d.stats.dropped++
		d.stats.Unlock()
		fmt.Printf("⚠️  Notification queue full, dropping notification for [%s]\n", strings.Join(participantIDs, ", "))
		return nil
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sink.Notify(ctx, n.ParticipantIDs, n.Message)
		cancel()

		d.stats.Lock()
		if err != nil {
			d.stats.failed++
		} else {
			d.stats.delivered++
		}
		d.stats.Unlock()

		if err != nil {
			fmt.Printf("❌ Notification delivery failed for [%s]: %v\n", strings.Join(n.ParticipantIDs, ", "), err)
		}
	}
}

// Close stops accepting notifications and waits for the queue to drain or
// ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStats 获取调度器统计信息
func (d *Dispatcher) GetStats() map[string]interface{} {
	d.stats.Lock()
	defer d.stats.Unlock()
	return map[string]interface{}{
		"queued":    len(d.queue),
		"delivered": d.stats.delivered,
		"failed":    d.stats.failed,
		"dropped":   d.stats.dropped,
	}
}
