package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aelexs/otp-fetcher/internal/domain"
)

// TickFunc runs once per interval. Returning true ends the task.
type TickFunc func(ctx context.Context) (done bool)

// Poller runs at most one recurring task per key. It owns every goroutine it
// starts; Close stops all tasks and waits for them.
type Poller struct {
	interval time.Duration

	mu     sync.Mutex
	tasks  map[string]*PollTask
	closed bool
	wg     sync.WaitGroup
}

// NewPoller creates a Poller that ticks every interval.
func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = domain.AutoCheckInterval
	}
	return &Poller{
		interval: interval,
		tasks:    make(map[string]*PollTask),
	}
}

// PollTask is a handle to one scheduled task.
type PollTask struct {
	key     string
	poller  *Poller
	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}
}

// Start schedules tick for key, stopping any task already scheduled for it.
// The first tick runs one interval after Start.
func (p *Poller) Start(key string, tick TickFunc) (*PollTask, error) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &PollTask{
		key:    key,
		poller: p,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("poller closed: %w", domain.ErrUnavailable)
	}
	old := p.tasks[key]
	p.tasks[key] = t
	p.wg.Add(1)
	p.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	go t.run(p.interval, tick)
	return t, nil
}

func (t *PollTask) run(interval time.Duration, tick TickFunc) {
	defer t.poller.wg.Done()
	defer close(t.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
		}
		if t.ctx.Err() != nil {
			return
		}
		if tick(t.ctx) {
			t.Stop()
			return
		}
	}
}

// Stop cancels the task. It does not wait for a running tick to return, so it
// is safe to call from inside the tick itself.
func (t *PollTask) Stop() bool {
	if !t.stopped.CompareAndSwap(false, true) {
		return false
	}
	t.cancel()

	p := t.poller
	p.mu.Lock()
	if p.tasks[t.key] == t {
		delete(p.tasks, t.key)
	}
	p.mu.Unlock()
	return true
}

// Stopped reports whether Stop has been called.
func (t *PollTask) Stopped() bool {
	return t.stopped.Load()
}

// Done is closed once the task goroutine has exited.
func (t *PollTask) Done() <-chan struct{} {
	return t.done
}

// Stop cancels the task scheduled for key, if any.
func (p *Poller) Stop(key string) bool {
	p.mu.Lock()
	t := p.tasks[key]
	p.mu.Unlock()

	if t == nil {
		return false
	}
	return t.Stop()
}

// Active reports whether a task is scheduled for key.
func (p *Poller) Active(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tasks[key]
	return ok
}

// Len returns the number of scheduled tasks.
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Close stops every task and waits for their goroutines to exit. Start fails
// after Close.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	tasks := make([]*PollTask, 0, len(p.tasks))
	for _, t := range p.tasks {
		tasks = append(tasks, t)
	}
	p.mu.Unlock()

	for _, t := range tasks {
		t.Stop()
	}
	p.wg.Wait()
}

var _ PollHandle = (*PollTask)(nil)
