// Package scheduler runs background work one task at a time.
package scheduler

import (
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("trellis.scheduler")

type Task struct {
	Name    string
	Execute func() error
}

type Scheduler struct {
	taskQueue chan Task
	stopChan  chan struct{}
	wg        sync.WaitGroup

	mu sync.Mutex
	// newest Execute of every queued task, by name
	pending map[string]func() error
	stopped bool
}

// NewScheduler creates a new Scheduler with the specified queue size
func NewScheduler(queueSize int) *Scheduler {
	return &Scheduler{
		taskQueue: make(chan Task, queueSize),
		stopChan:  make(chan struct{}),
		pending:   make(map[string]func() error),
	}
}

// RunScheduler starts the scheduler loop
func (s *Scheduler) RunScheduler() {
	go func() {
		for {
			select {
			case task, ok := <-s.taskQueue:
				if !ok {
					// Channel closed, exit the loop
					return
				}
				s.run(task)
			case <-s.stopChan:
				// Stop signal received, drain the taskQueue and exit
				for task := range s.taskQueue {
					log.Debugf("draining task: %s", task.Name)
					s.run(task)
				}
				return
			}
		}
	}()
}

func (s *Scheduler) run(task Task) {
	defer s.wg.Done()
	s.mu.Lock()
	execute, ok := s.pending[task.Name]
	delete(s.pending, task.Name)
	s.mu.Unlock()
	if !ok {
		execute = task.Execute
	}

	log.Debugf("executing %s task", task.Name)
	if err := execute(); err != nil {
		log.Errorf("task %s failed: %v", task.Name, err)
	}
}

// Schedule queues task. When a task with the same name is already waiting
// to run, that task takes over the new Execute instead. Schedule never
// blocks: when the queue is full the task is skipped.
func (s *Scheduler) Schedule(task Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		log.Warningf("scheduler stopped, skipped %s", task.Name)
		return false
	}
	if _, ok := s.pending[task.Name]; ok {
		log.Debugf("%s already scheduled", task.Name)
		s.pending[task.Name] = task.Execute
		return true
	}

	s.wg.Add(1) // Add to wait group before the task becomes visible
	select {
	case s.taskQueue <- task:
		s.pending[task.Name] = task.Execute
		return true
	default:
		s.wg.Done()
		log.Warningf("skipped scheduling %s, queue is full", task.Name)
		return false
	}
}

// Wait blocks until every task scheduled so far has completed.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// StopScheduler waits for all tasks to complete and stops the scheduler
func (s *Scheduler) StopScheduler() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	log.Debugf("stopping scheduler")
	close(s.stopChan)  // Signal the scheduler to stop
	close(s.taskQueue) // Close the task queue to prevent further submissions
	s.wg.Wait()        // Wait for all tasks to complete
	log.Debugf("scheduler stopped")
}
