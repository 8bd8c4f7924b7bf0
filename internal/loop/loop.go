package loop

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Loop runs posted tasks one at a time, in posting order, on a single
// background goroutine.
//
// Loop is the cooperative scheduler behind a document: every task observes
// the effects of all tasks posted before it, and no two tasks ever run at the
// same time. Posting from inside a task is allowed and never blocks; the
// posted task runs after the current one returns (one "tick" later).
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Loop struct {
	logger *slog.Logger
	wake   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	queue   []func()
	started bool
	stopped bool
	cancel  context.CancelFunc
}

// New creates a [Loop]. Tasks posted before [Loop.Start] are queued and run
// once the loop starts.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Start begins running tasks in a background goroutine.
//
// If ctx is nil, context.Background() is used as the parent context. Start is
// idempotent; subsequent calls after the first are no-ops. If Stop was called
// before Start, Start is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		for {
			task, ok := l.next(runCtx)
			if !ok {
				return
			}
			l.run(task)
		}
	}()
}

// Stop halts the loop after the running task (if any) returns and waits for
// the loop goroutine to exit. Tasks still queued are discarded.
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op. Stop must not be called from inside a task.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.stopped {
		l.stopped = true
		l.queue = nil
		if l.cancel != nil {
			l.cancel()
		}
	}
	l.mu.Unlock()

	l.wg.Wait()
}

// Post queues task to run after every previously posted task.
// Returns false if the loop has been stopped and the task was dropped.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do posts task and blocks until it has run, the loop stops, or ctx is done.
// Do must not be called from inside a task: the calling task would wait for
// itself.
func (l *Loop) Do(ctx context.Context, task func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		task()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// next blocks until a task is available or ctx is cancelled.
func (l *Loop) next(ctx context.Context) (func(), bool) {
	for {
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			return nil, false
		}
		if len(l.queue) > 0 {
			task := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			return task, true
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-l.wake:
		}
	}
}

// run executes a task with panic recovery. A panicking task is logged with a
// correlation ID and the loop keeps running.
func (l *Loop) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panic",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	task()
}

// Timer is a cancellable delayed task created by [Loop.AfterFunc].
type Timer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

// AfterFunc posts task to the loop once d has elapsed. Negative durations are
// treated as zero.
//
// The stop check happens on the loop itself, so a task whose timer was stopped
// by an earlier task never runs, even if the timer had already expired.
func (l *Loop) AfterFunc(d time.Duration, task func()) *Timer {
	if d < 0 {
		d = 0
	}
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.Load() {
				return
			}
			task()
		})
	})
	return t
}

// Stop prevents the timer's task from running. Returns false if the timer was
// already stopped. Safe to call on a nil Timer.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	if t.stopped.Swap(true) {
		return false
	}
	t.timer.Stop()
	return true
}
