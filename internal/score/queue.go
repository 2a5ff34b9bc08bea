package score

import (
	"errors"
	"fmt"
	"sync"
)

const (
	// Rest marks a silent slot in a NoteGroup.
	Rest = 0
	// MaxDegree is the highest scale degree (G#, counting A as 1).
	MaxDegree = 12
)

var ErrInvalidInput = errors.New("invalid note group")

// NoteGroup holds every note struck on one sixteenth-note subdivision.
// Values are scale degrees 1-12 starting at A, or Rest. [4, 8, 11] is a
// C major triad.
type NoteGroup []int

// Validate checks that every value is a rest or a scale degree.
func (g NoteGroup) Validate() error {
	if g == nil {
		return fmt.Errorf("%w: nil group", ErrInvalidInput)
	}
	for i, n := range g {
		if n < Rest || n > MaxDegree {
			return fmt.Errorf("%w: value %d at index %d outside [0,%d]", ErrInvalidInput, n, i, MaxDegree)
		}
	}
	return nil
}

// IsRest reports whether the group strikes nothing.
func (g NoteGroup) IsRest() bool {
	for _, n := range g {
		if n != Rest {
			return false
		}
	}
	return true
}

type node struct {
	group NoteGroup
	next  *node
}

// Queue is the FIFO of note groups making up a score. It is consumed front
// to back exactly once.
type Queue struct {
	mu     sync.Mutex
	head   *node
	tail   *node
	length int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// FromGroups builds a queue holding groups in order. Nothing is queued if
// any group is invalid.
func FromGroups(groups []NoteGroup) (*Queue, error) {
	for i, g := range groups {
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
	}
	q := NewQueue()
	for _, g := range groups {
		q.Push(g)
	}
	return q, nil
}

// Push appends a copy of group and returns the new length. An invalid group
// leaves the queue unchanged.
func (q *Queue) Push(group NoteGroup) (int, error) {
	if err := group.Validate(); err != nil {
		return q.Len(), err
	}
	n := &node{group: append(NoteGroup(nil), group...)}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
	q.length++
	return q.length, nil
}

// Pop removes and returns the head group. ok is false when the queue is
// empty; that is the end-of-score signal, not an error.
func (q *Queue) Pop() (group NoteGroup, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.length == 0 {
		return nil, false
	}
	n := q.head
	q.head = n.next
	q.length--
	if q.length == 0 {
		q.tail = nil
	}
	return n.group, true
}

// Len returns the number of groups left.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}

// NewTestQueue returns the demo score: an A struck on four consecutive beats,
// with three sixteenth rests between strikes.
func NewTestQueue() *Queue {
	q := NewQueue()
	for i := 0; i < 3; i++ {
		q.Push(NoteGroup{1})
		q.Push(NoteGroup{0})
		q.Push(NoteGroup{0})
		q.Push(NoteGroup{0})
	}
	q.Push(NoteGroup{1})
	return q
}
