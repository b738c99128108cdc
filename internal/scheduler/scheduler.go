// Package scheduler provides a delayed-task primitive for retries and
// quiet-hour reschedules, grounded on the teacher's poll-driven workers
// (internal/worker/campaign_scheduler.go): an in-process min-heap of due
// times, re-checked every pollEvery and whenever DelayUntil adds a task.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/ignite/transact-messaging/internal/clock"
)

// Handler is invoked when a delayed task's time arrives. Re-invocation after
// a crash-restart is tolerated because every caller guards its own
// transition with a compare-and-set (spec.md §4.9).
type Handler func(ctx context.Context, key string)

// Persister durably records pending delayed tasks so a restarted process
// can reload and re-arm them. Backed by internal/store's scheduled_tasks
// table in production; a no-op in tests that don't exercise crash-resume.
type Persister interface {
	SaveScheduledTask(ctx context.Context, key string, when time.Time) error
	DeleteScheduledTask(ctx context.Context, key string) error
	ListScheduledTasks(ctx context.Context) (map[string]time.Time, error)
}

// Scheduler is the injectable delayed-task primitive of spec.md §4.9.
type Scheduler interface {
	// DelayUntil arranges for handler(key) to run at or after `when`.
	// A duplicate key replaces the prior schedule for that key.
	DelayUntil(key string, when time.Time, handler Handler)
	// Start begins the driver goroutine. Stop cancels it.
	Start(ctx context.Context)
	Stop()
}

type timerEntry struct {
	key     string
	when    time.Time
	handler Handler
	index   int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// InProcessScheduler drives delayed tasks with one goroutine and a min-heap
// of pending timers, checked against an injected Clock so tests can advance
// time deterministically instead of sleeping.
type InProcessScheduler struct {
	clock     clock.Clock
	persist   Persister
	mu        sync.Mutex
	entries   timerHeap
	byKey     map[string]*timerEntry
	wake      chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
	pollEvery time.Duration
}

// NewInProcessScheduler creates a Scheduler. pollEvery bounds how often the
// driver re-checks the heap against the clock (useful with a FakeClock in
// tests); cmd/server and cmd/worker pass 5s, and a non-positive value
// falls back to 200ms.
func NewInProcessScheduler(c clock.Clock, persist Persister, pollEvery time.Duration) *InProcessScheduler {
	if pollEvery <= 0 {
		pollEvery = 200 * time.Millisecond
	}
	return &InProcessScheduler{
		clock:     c,
		persist:   persist,
		byKey:     make(map[string]*timerEntry),
		wake:      make(chan struct{}, 1),
		pollEvery: pollEvery,
	}
}

// DelayUntil schedules handler(key) to run at or after when, replacing any
// existing schedule for the same key, and persists the schedule for
// crash-resume.
func (s *InProcessScheduler) DelayUntil(key string, when time.Time, handler Handler) {
	s.mu.Lock()
	if existing, ok := s.byKey[key]; ok {
		existing.when = when
		existing.handler = handler
		heap.Fix(&s.entries, existing.index)
	} else {
		e := &timerEntry{key: key, when: when, handler: handler}
		heap.Push(&s.entries, e)
		s.byKey[key] = e
	}
	s.mu.Unlock()

	if s.persist != nil {
		_ = s.persist.SaveScheduledTask(context.Background(), key, when)
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Restore reloads persisted pending tasks (e.g. after a crash) and re-arms
// each with the given handler, since all persisted tasks at restart time are
// of the same kind: "re-run the compliance pipeline for this message".
func (s *InProcessScheduler) Restore(ctx context.Context, handler Handler) error {
	if s.persist == nil {
		return nil
	}
	pending, err := s.persist.ListScheduledTasks(ctx)
	if err != nil {
		return err
	}
	for key, when := range pending {
		s.DelayUntil(key, when, handler)
	}
	return nil
}

// Start launches the driver goroutine.
func (s *InProcessScheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop halts the driver goroutine and waits for it to exit.
func (s *InProcessScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

func (s *InProcessScheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()
	for {
		s.fireDue(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}
	}
}

func (s *InProcessScheduler) fireDue(ctx context.Context) {
	now := s.clock.Now()
	for {
		s.mu.Lock()
		if len(s.entries) == 0 || s.entries[0].when.After(now) {
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.entries).(*timerEntry)
		delete(s.byKey, e.key)
		s.mu.Unlock()

		if s.persist != nil {
			_ = s.persist.DeleteScheduledTask(ctx, e.key)
		}
		e.handler(ctx, e.key)
	}
}
