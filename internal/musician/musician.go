package musician

import (
	"errors"
	"log"
	"sync"

	"github.com/satindergrewal/songwheel/internal/instrument"
	"github.com/satindergrewal/songwheel/internal/score"
	"github.com/satindergrewal/songwheel/internal/wheel"
)

// State is the playback lifecycle: Idle -> Playing -> Stopped.
type State int

const (
	Idle State = iota
	Playing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

var ErrNotIdle = errors.New("musician already played")

// Source yields the score one group per tick. ok=false ends the performance.
type Source interface {
	Pop() (score.NoteGroup, bool)
}

// Clock publishes ticks carrying the wheel position.
type Clock interface {
	Ticks() *wheel.Feed[float64]
}

// Actuation describes one struck note.
type Actuation struct {
	Tick     int     `json:"tick"`     // 1-based tick that played it
	Note     int     `json:"note"`     // scale degree
	Pick     int     `json:"pick"`     // pick actuated
	Position float64 `json:"position"` // wheel position at the tick
}

// ActuateFunc observes actuations after they reach the instrument.
type ActuateFunc func(Actuation)

// Musician plays a score: on every tick it takes the next note group and
// strikes each of its notes on the instrument. When the score runs out it
// stops for good; a new performance needs a new Musician.
type Musician struct {
	source Source
	clock  Clock
	inst   instrument.Instrument

	mu         sync.Mutex
	state      State
	sub        *wheel.Subscription[float64]
	ticks      int
	actuations int
	actuateFn  ActuateFunc
	stopFn     func()
	stopOnce   sync.Once
}

// New creates an idle musician.
func New(source Source, clock Clock, inst instrument.Instrument) *Musician {
	return &Musician{
		source: source,
		clock:  clock,
		inst:   inst,
	}
}

// SetActuateFunc registers an observer called for every actuation.
func (m *Musician) SetActuateFunc(fn ActuateFunc) {
	m.mu.Lock()
	m.actuateFn = fn
	m.mu.Unlock()
}

// SetStopFunc registers a callback run once when the musician stops.
func (m *Musician) SetStopFunc(fn func()) {
	m.mu.Lock()
	m.stopFn = fn
	m.mu.Unlock()
}

// Play starts consuming ticks.
func (m *Musician) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return ErrNotIdle
	}
	m.state = Playing
	m.sub = m.clock.Ticks().Subscribe(m.playNote)
	log.Println("Musician playing")
	return nil
}

// Stop ends the performance early. Stopping a stopped musician is a no-op.
func (m *Musician) Stop() {
	m.mu.Lock()
	if m.state == Stopped {
		m.mu.Unlock()
		return
	}
	m.halt()
	m.mu.Unlock()
	m.finish()
}

// State returns the current lifecycle state.
func (m *Musician) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ticks returns how many ticks played a note group.
func (m *Musician) Ticks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks
}

// Actuations returns how many picks were actuated.
func (m *Musician) Actuations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.actuations
}

func (m *Musician) playNote(pos float64) {
	m.mu.Lock()
	if m.state != Playing {
		m.mu.Unlock()
		return
	}

	group, ok := m.source.Pop()
	if !ok {
		m.halt()
		ticks, actuations := m.ticks, m.actuations
		m.mu.Unlock()
		log.Printf("Score finished (ticks: %d, actuations: %d)", ticks, actuations)
		m.finish()
		return
	}

	m.ticks++
	var acts []Actuation
	for _, note := range group {
		pick, ok := instrument.TargetPick(note, pos)
		if !ok {
			continue
		}
		acts = append(acts, Actuation{Tick: m.ticks, Note: note, Pick: pick, Position: pos})
	}
	m.actuations += len(acts)
	fn := m.actuateFn
	m.mu.Unlock()

	for _, a := range acts {
		m.inst.Actuate(a.Pick)
		if fn != nil {
			fn(a)
		}
	}
}

// halt moves to Stopped and drops the tick subscription. Must be called
// with mu held.
func (m *Musician) halt() {
	m.state = Stopped
	if m.sub != nil {
		m.sub.Unsubscribe()
		m.sub = nil
	}
}

func (m *Musician) finish() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		fn := m.stopFn
		m.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}
