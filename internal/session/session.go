package session

import (
	"context"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/satindergrewal/songwheel/internal/instrument"
	"github.com/satindergrewal/songwheel/internal/musician"
	"github.com/satindergrewal/songwheel/internal/wheel"
)

const (
	DefaultBPM    = 60
	DefaultWarmUp = time.Second
)

// Config holds session timing parameters. Zero values take the defaults.
type Config struct {
	BPM       float64
	Step      time.Duration   // motor update interval
	WarmUp    time.Duration   // delay between wheel start and first note
	Scheduler wheel.Scheduler // nil = wall clock

	// OnActuate, if set, observes every actuation.
	OnActuate musician.ActuateFunc
}

// Summary describes a finished session.
type Summary struct {
	Ticks      int           `json:"ticks"`
	Actuations int           `json:"actuations"`
	Elapsed    time.Duration `json:"elapsed"`
	Cancelled  bool          `json:"cancelled"`
	Stalled    bool          `json:"stalled"` // ended because the metronome stopped ticking
}

// Session is one performance of a score on a freshly started wheel.
type Session struct {
	motor     *wheel.Motor
	metronome *wheel.Metronome
	musician  *musician.Musician

	warmUp     wheel.Task
	onComplete func(Summary)
	cancelled  atomic.Bool
	stalled    atomic.Bool
	done       chan struct{}

	mu         sync.Mutex
	summary    Summary
	watchdog   *wheel.Subscription[float64]
	lastCount  int
	idleSteps  int
	stallSteps int
}

// Run starts the motor and metronome, begins playing after the warm-up and
// calls onComplete exactly once when the score runs out or the session is
// stopped. It returns immediately. Cancelling ctx stops the session. A
// session whose metronome goes a full turn without ticking is stopped with
// Summary.Stalled set; see wheel.CheckTempo for the tempos that avoid it.
func Run(ctx context.Context, source musician.Source, inst instrument.Instrument, onComplete func(Summary), cfg Config) *Session {
	if cfg.BPM <= 0 {
		cfg.BPM = DefaultBPM
	}
	if cfg.WarmUp <= 0 {
		cfg.WarmUp = DefaultWarmUp
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = wheel.NewTimeline()
	}

	s := &Session{
		onComplete: onComplete,
		done:       make(chan struct{}),
	}
	s.motor = wheel.NewMotor(cfg.BPM, wheel.WithStep(cfg.Step), wheel.WithScheduler(cfg.Scheduler))
	s.metronome = wheel.NewMetronome(s.motor)
	s.musician = musician.New(source, s.metronome, inst)
	s.musician.SetActuateFunc(cfg.OnActuate)
	s.musician.SetStopFunc(s.finish)

	s.stallSteps = int(math.Ceil(wheel.FullTurn/s.motor.DegreesPerStep())) + 1
	// the metronome subscribes first so the watchdog sees each step's tick
	s.metronome.Start()
	s.mu.Lock()
	s.watchdog = s.motor.Moved().Subscribe(s.watchStall)
	s.mu.Unlock()
	s.motor.Start()
	s.warmUp = cfg.Scheduler.After(cfg.WarmUp, func() {
		if err := s.musician.Play(); err != nil {
			log.Printf("Session play: %v", err)
		}
	})

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.Stop()
			case <-s.done:
			}
		}()
	}

	return s
}

// Stop ends the session early. onComplete still runs, with Cancelled set.
func (s *Session) Stop() {
	s.cancelled.Store(true)
	s.musician.Stop()
}

// Done is closed once the session has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Summary returns the final summary; valid after Done is closed.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// State returns the musician's state.
func (s *Session) State() musician.State {
	return s.musician.State()
}

// Position returns the wheel position in degrees.
func (s *Session) Position() float64 {
	return s.motor.Position()
}

// Ticks returns the note groups played so far.
func (s *Session) Ticks() int {
	return s.musician.Ticks()
}

// Actuations returns the picks actuated so far.
func (s *Session) Actuations() int {
	return s.musician.Actuations()
}

// watchStall runs after the metronome on every motor step.
func (s *Session) watchStall(float64) {
	n := s.metronome.Count()
	s.mu.Lock()
	if n != s.lastCount {
		s.lastCount, s.idleSteps = n, 0
		s.mu.Unlock()
		return
	}
	s.idleSteps++
	stalled := s.idleSteps > s.stallSteps
	s.mu.Unlock()

	if stalled && s.stalled.CompareAndSwap(false, true) {
		log.Printf("Session stalled: no tick for a full turn at %.1f deg (next tick %.0f deg)", s.motor.Position(), s.metronome.NextTick())
		s.musician.Stop()
	}
}

func (s *Session) finish() {
	s.mu.Lock()
	if s.watchdog != nil {
		s.watchdog.Unsubscribe()
	}
	s.mu.Unlock()
	s.warmUp.Cancel()
	s.metronome.Stop()
	s.motor.Stop()

	sum := Summary{
		Ticks:      s.musician.Ticks(),
		Actuations: s.musician.Actuations(),
		Elapsed:    s.motor.Elapsed(),
		Cancelled:  s.cancelled.Load(),
		Stalled:    s.stalled.Load(),
	}
	s.mu.Lock()
	s.summary = sum
	s.mu.Unlock()
	close(s.done)

	log.Printf("Session complete (ticks: %d, actuations: %d, elapsed: %v, cancelled: %v, stalled: %v)",
		sum.Ticks, sum.Actuations, sum.Elapsed, sum.Cancelled, sum.Stalled)
	if s.onComplete != nil {
		s.onComplete(sum)
	}
}
