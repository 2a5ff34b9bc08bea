package wheel

import (
	"log"
	"math"
	"sync"
)

const (
	// TickDegrees is the rotation between two ticks (one sixteenth note).
	TickDegrees = 30.0

	// TickCeiling is the highest position a tick may fire at. No tick fires
	// in (330, 360). The 330 deg tick therefore needs a step that lands on
	// exactly 330; a step that passes over it leaves the metronome waiting
	// at 330 for good, and no further tick fires.
	TickCeiling = 330.0
)

// Metronome watches a motor and emits a tick each time the wheel crosses
// the next multiple of TickDegrees. Absolute time plays no part: the wheel's
// position is the only clock.
type Metronome struct {
	motor *Motor
	ticks Feed[float64]

	mu       sync.Mutex
	nextTick float64
	sub      *Subscription[float64]
	count    int
}

// NewMetronome creates a stopped metronome for m.
func NewMetronome(m *Motor) *Metronome {
	return &Metronome{motor: m}
}

// Start aligns the first tick with the next multiple of TickDegrees past the
// motor's current position and begins watching it.
func (mt *Metronome) Start() error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.sub != nil {
		log.Println("Metronome already started")
		return ErrAlreadyRunning
	}
	pos := mt.motor.Position()
	mt.nextTick = wrap(pos - math.Mod(pos, TickDegrees) + TickDegrees)
	mt.sub = mt.motor.Moved().Subscribe(mt.watch)

	if err := CheckTempo(mt.motor.BPM(), mt.motor.step); err != nil {
		log.Printf("Metronome: %v, the %.0f deg tick can be missed", err, TickCeiling)
	}
	return nil
}

// Stop detaches from the motor. It is safe to call from a tick handler and
// no tick is delivered once it returns.
func (mt *Metronome) Stop() error {
	mt.mu.Lock()
	sub := mt.sub
	mt.sub = nil
	mt.mu.Unlock()

	if sub == nil {
		return ErrNotRunning
	}
	sub.Unsubscribe()
	return nil
}

// Ticks is the feed of tick events; each carries the wheel position at which
// the tick fired.
func (mt *Metronome) Ticks() *Feed[float64] {
	return &mt.ticks
}

// NextTick returns the threshold the next tick waits for.
func (mt *Metronome) NextTick() float64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.nextTick
}

// Count returns the number of ticks emitted so far.
func (mt *Metronome) Count() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.count
}

// Running reports whether the metronome is watching its motor.
func (mt *Metronome) Running() bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.sub != nil
}

func (mt *Metronome) watch(pos float64) {
	mt.mu.Lock()
	if mt.sub == nil || pos < mt.nextTick || pos > TickCeiling {
		mt.mu.Unlock()
		return
	}
	mt.nextTick = wrap(mt.nextTick + TickDegrees)
	mt.count++
	mt.mu.Unlock()

	mt.ticks.Publish(pos)
}
