package instrument

import (
	"log"
	"sync"
)

// Instrument actuates picks. Actuate is fire-and-forget: it must not block
// the playback timeline and reports nothing back.
type Instrument interface {
	Actuate(pick int)
}

// Func adapts a plain function to an Instrument.
type Func func(pick int)

func (f Func) Actuate(pick int) { f(pick) }

// Console prints each actuation to the log.
type Console struct{}

func (Console) Actuate(pick int) {
	log.Printf("Actuated pick #%d", pick)
}

// Multi fans one actuation out to several instruments, in order.
type Multi []Instrument

func (m Multi) Actuate(pick int) {
	for _, inst := range m {
		inst.Actuate(pick)
	}
}

// Recorder keeps every actuated pick. Useful as a dry-run sink.
type Recorder struct {
	mu    sync.Mutex
	picks []int
}

func (r *Recorder) Actuate(pick int) {
	r.mu.Lock()
	r.picks = append(r.picks, pick)
	r.mu.Unlock()
}

// Picks returns a copy of the recorded picks.
func (r *Recorder) Picks() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.picks...)
}
