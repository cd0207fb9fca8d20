package scheduler_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"trellis/internal/scheduler"
)

func TestTasksRunSerially(t *testing.T) {
	s := scheduler.NewScheduler(16)
	s.RunScheduler()
	defer s.StopScheduler()

	var running, maxRunning atomic.Int32
	var mu sync.Mutex
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		s.Schedule(scheduler.Task{Name: name, Execute: func() error {
			n := running.Add(1)
			if n > maxRunning.Load() {
				maxRunning.Store(n)
			}
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			running.Add(-1)
			return nil
		}})
	}
	s.Wait()

	if maxRunning.Load() != 1 {
		t.Errorf("tasks overlapped: %d at once", maxRunning.Load())
	}
	if len(order) != 3 || order[0] != "a" || order[2] != "c" {
		t.Errorf("order = %v", order)
	}
}

func TestPendingTasksCoalesce(t *testing.T) {
	s := scheduler.NewScheduler(16)

	var runs atomic.Int32
	task := scheduler.Task{Name: "reindex", Execute: func() error {
		runs.Add(1)
		return errors.New("failures are only logged")
	}}
	// nothing runs until the loop starts, so these stay pending
	for i := 0; i < 5; i++ {
		if !s.Schedule(task) {
			t.Fatal("schedule refused")
		}
	}
	s.RunScheduler()
	s.Wait()
	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", runs.Load())
	}

	s.Schedule(task)
	s.Wait()
	if runs.Load() != 2 {
		t.Errorf("runs = %d, want 2", runs.Load())
	}
	s.StopScheduler()
	s.StopScheduler()

	if s.Schedule(task) {
		t.Error("stopped scheduler accepted a task")
	}
}

func TestPendingTaskRunsNewestExecute(t *testing.T) {
	s := scheduler.NewScheduler(16)
	s.RunScheduler()
	defer s.StopScheduler()

	started := make(chan struct{})
	release := make(chan struct{})
	s.Schedule(scheduler.Task{Name: "block", Execute: func() error {
		close(started)
		<-release
		return nil
	}})
	<-started

	var got []int
	for i := 1; i <= 3; i++ {
		s.Schedule(scheduler.Task{Name: "index", Execute: func() error {
			got = append(got, i)
			return nil
		}})
	}
	close(release)
	s.Wait()

	if len(got) != 1 || got[0] != 3 {
		t.Errorf("ran %v, want [3]", got)
	}
}

func TestFullQueueSkips(t *testing.T) {
	s := scheduler.NewScheduler(1)
	noop := func() error { return nil }
	if !s.Schedule(scheduler.Task{Name: "first", Execute: noop}) {
		t.Fatal("first task refused")
	}
	if s.Schedule(scheduler.Task{Name: "second", Execute: noop}) {
		t.Fatal("full queue accepted a task")
	}
	s.RunScheduler()
	s.StopScheduler()
}
