package wheel

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a handle to scheduled work.
type Task interface {
	// Cancel prevents any further runs. Safe to call from inside the task's
	// own callback and safe to call more than once.
	Cancel()
}

// Scheduler runs callbacks on a single logical timeline.
type Scheduler interface {
	// Every runs fn once per interval until the returned task is cancelled.
	Every(interval time.Duration, fn func()) Task
	// After runs fn once after delay.
	After(delay time.Duration, fn func()) Task
}

// --- Timeline: wall-clock scheduler ---

// Timeline schedules callbacks on real timers. Callbacks never overlap: each
// one holds the timeline lock for its whole run, so motor steps, warm-up
// timers and everything they trigger form one ordered chain of events.
type Timeline struct {
	mu sync.Mutex
}

// NewTimeline creates a wall-clock scheduler.
func NewTimeline() *Timeline {
	return &Timeline{}
}

type timerTask struct {
	cancelled atomic.Bool
	stop      func()
}

func (t *timerTask) Cancel() {
	if t.cancelled.CompareAndSwap(false, true) && t.stop != nil {
		t.stop()
	}
}

// Every starts a ticker goroutine for fn.
func (tl *Timeline) Every(interval time.Duration, fn func()) Task {
	ctx, cancel := context.WithCancel(context.Background())
	task := &timerTask{stop: cancel}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tl.fire(task, fn)
			}
		}
	}()

	return task
}

// After arms a one-shot timer for fn.
func (tl *Timeline) After(delay time.Duration, fn func()) Task {
	task := &timerTask{}
	timer := time.AfterFunc(delay, func() {
		tl.fire(task, fn)
		task.cancelled.Store(true)
	})
	task.stop = func() { timer.Stop() }
	return task
}

func (tl *Timeline) fire(task *timerTask, fn func()) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if task.cancelled.Load() {
		return
	}
	fn()
}

// --- ManualScheduler: deterministic virtual time ---

// ManualScheduler runs callbacks only when its virtual clock is advanced.
// Used by tests and by offline rendering, where playback must run faster
// than real time and produce the same events every run.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	s         *ManualScheduler
	seq       int
	next      time.Duration
	period    time.Duration
	fn        func()
	cancelled bool
}

func (t *manualTask) Cancel() {
	t.s.mu.Lock()
	t.cancelled = true
	t.s.mu.Unlock()
}

// NewManualScheduler creates a scheduler whose clock starts at zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Every schedules fn at now+interval, now+2*interval, ...
func (s *ManualScheduler) Every(interval time.Duration, fn func()) Task {
	return s.add(interval, interval, fn)
}

// After schedules fn once at now+delay.
func (s *ManualScheduler) After(delay time.Duration, fn func()) Task {
	return s.add(delay, 0, fn)
}

func (s *ManualScheduler) add(delay, period time.Duration, fn func()) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTask{s: s, seq: s.seq, next: s.now + delay, period: period, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// Now returns the virtual time.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of tasks that can still fire.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	return len(s.tasks)
}

// Advance moves the clock forward by d, firing every task that comes due in
// time order. Tasks due at the same instant fire in scheduling order.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for s.fireNext(target) {
	}

	s.mu.Lock()
	s.now = target
	s.mu.Unlock()
}

// Step jumps to the earliest pending task and fires it. It returns false when
// nothing is scheduled.
func (s *ManualScheduler) Step() bool {
	s.mu.Lock()
	s.prune()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return false
	}
	s.sortTasks()
	target := s.tasks[0].next
	s.mu.Unlock()
	return s.fireNext(target)
}

func (s *ManualScheduler) fireNext(limit time.Duration) bool {
	s.mu.Lock()
	s.prune()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return false
	}
	s.sortTasks()
	t := s.tasks[0]
	if t.next > limit {
		s.mu.Unlock()
		return false
	}
	s.now = t.next
	if t.period > 0 {
		t.next += t.period
	} else {
		t.cancelled = true
	}
	fn := t.fn
	s.mu.Unlock()

	fn()
	return true
}

// prune drops cancelled tasks. Must be called with mu held.
func (s *ManualScheduler) prune() {
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = live
}

// sortTasks orders tasks by due time, then by scheduling order. Must be
// called with mu held.
func (s *ManualScheduler) sortTasks() {
	sort.Slice(s.tasks, func(i, j int) bool {
		if s.tasks[i].next != s.tasks[j].next {
			return s.tasks[i].next < s.tasks[j].next
		}
		return s.tasks[i].seq < s.tasks[j].seq
	})
}
