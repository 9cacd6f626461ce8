package timer

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// ErrSchedulerStopped is returned by Schedule after Stop.
var ErrSchedulerStopped = errors.New("scheduler is stopped")

// Job is a callback scheduled for future execution.
type Job struct {
	ID       string
	RunAt    time.Time
	Callback func()
	index    int // index in the heap
}

// jobHeap is a min-heap of Jobs ordered by RunAt.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	return h[i].RunAt.Before(h[j].RunAt)
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x interface{}) {
	n := len(*h)
	job := x.(*Job)
	job.index = n
	*h = append(*h, job)
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*h = old[0 : n-1]
	return job
}

// Scheduler runs jobs at their scheduled time using a min-heap. Used by
// the sync daemon mode to drive periodic reconciliation runs.
type Scheduler struct {
	heap    jobHeap
	mu      sync.Mutex
	wakeup  chan struct{}
	jobs    map[string]*Job
	stopped bool
	stopCh  chan struct{}
}

// NewScheduler creates a scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		heap:   make(jobHeap, 0),
		wakeup: make(chan struct{}, 1),
		jobs:   make(map[string]*Job),
		stopCh: make(chan struct{}),
	}
	heap.Init(&s.heap)
	return s
}

// Start starts the scheduler loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop stops the scheduler. Pending jobs are discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stopCh)
}

// Schedule adds a job to be executed at the specified time. Scheduling
// an existing id replaces that job.
func (s *Scheduler) Schedule(id string, runAt time.Time, callback func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}

	if existing, ok := s.jobs[id]; ok {
		heap.Remove(&s.heap, existing.index)
		delete(s.jobs, id)
	}

	job := &Job{
		ID:       id,
		RunAt:    runAt,
		Callback: callback,
	}

	heap.Push(&s.heap, job)
	s.jobs[id] = job

	// Wake the loop if this became the earliest job
	if s.heap[0] == job {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}

	return nil
}

// Cancel removes a scheduled job.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}

	heap.Remove(&s.heap, job.index)
	delete(s.jobs, id)
	return true
}

// Pending returns the number of scheduled jobs.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) run() {
	for {
		s.mu.Lock()

		if s.stopped {
			s.mu.Unlock()
			return
		}

		var wait time.Duration
		if s.heap.Len() == 0 {
			wait = 24 * time.Hour
		} else {
			next := s.heap[0]
			wait = time.Until(next.RunAt)

			if wait <= 0 {
				job := heap.Pop(&s.heap).(*Job)
				delete(s.jobs, job.ID)

				go job.Callback()

				s.mu.Unlock()
				continue
			}
		}

		s.mu.Unlock()

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-s.wakeup:
			t.Stop()
		case <-s.stopCh:
			t.Stop()
			return
		}
	}
}
