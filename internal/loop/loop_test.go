package loop

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoop_StopBeforeStart(t *testing.T) {
	l := New(testLogger())

	// this must not panic
	l.Stop()

	if l.Post(func() {}) {
		t.Error("Post() after Stop() = true, want false")
	}
}

func TestLoop_StopTwice(t *testing.T) {
	l := New(testLogger())
	l.Start(context.Background())

	l.Stop()
	l.Stop()
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l := New(testLogger())
	l.Start(context.Background())
	defer l.Stop()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 50; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}

	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 50 {
		t.Fatalf("ran %d tasks, want 50", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestLoop_PostBeforeStart(t *testing.T) {
	l := New(testLogger())
	ran := make(chan struct{})
	l.Post(func() { close(ran) })

	select {
	case <-ran:
		t.Fatal("task ran before Start()")
	case <-time.After(20 * time.Millisecond):
	}

	l.Start(context.Background())
	defer l.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queued task did not run after Start()")
	}
}

// TestLoop_NestedPostRunsNextTick verifies that a task posted from inside a
// task runs after tasks that were already queued.
func TestLoop_NestedPostRunsNextTick(t *testing.T) {
	l := New(testLogger())

	var order []string
	l.Post(func() {
		order = append(order, "first")
		l.Post(func() { order = append(order, "nested") })
	})
	l.Post(func() { order = append(order, "second") })

	l.Start(context.Background())
	defer l.Stop()

	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	// nested was posted before the Do barrier, so it has run by now
	want := []string{"first", "second", "nested"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestLoop_PanicDoesNotStopLoop(t *testing.T) {
	l := New(testLogger())
	l.Start(context.Background())
	defer l.Stop()

	l.Post(func() { panic("boom") })

	ran := false
	if err := l.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !ran {
		t.Error("task after panic did not run")
	}
}

func TestLoop_DoAfterStop(t *testing.T) {
	l := New(testLogger())
	l.Start(context.Background())
	l.Stop()

	if err := l.Do(context.Background(), func() {}); err != ErrStopped {
		t.Errorf("Do() error = %v, want ErrStopped", err)
	}
}

func TestLoop_AfterFuncFires(t *testing.T) {
	l := New(testLogger())
	l.Start(context.Background())
	defer l.Stop()

	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer task did not run")
	}
}

func TestLoop_TimerStopPreventsTask(t *testing.T) {
	l := New(testLogger())
	l.Start(context.Background())
	defer l.Stop()

	fired := make(chan struct{}, 1)
	timer := l.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} })

	if !timer.Stop() {
		t.Error("first Stop() = false, want true")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}

	select {
	case <-fired:
		t.Fatal("stopped timer task ran")
	case <-time.After(60 * time.Millisecond):
	}
}

// TestLoop_TimerStoppedAfterExpiry covers the window where the timer already
// expired and queued its task, but a task queued ahead of it stops the timer.
func TestLoop_TimerStoppedAfterExpiry(t *testing.T) {
	l := New(testLogger())

	fired := false
	var timer *Timer
	l.Post(func() { timer.Stop() })
	timer = l.AfterFunc(5*time.Millisecond, func() { fired = true })

	// let the timer expire and queue its task behind the stop task
	time.Sleep(30 * time.Millisecond)

	l.Start(context.Background())
	defer l.Stop()
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if fired {
		t.Error("timer task ran after Stop() on the loop")
	}

	var nilTimer *Timer
	if nilTimer.Stop() {
		t.Error("nil Timer Stop() = true")
	}
}
