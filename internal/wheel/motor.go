package wheel

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

const (
	// DefaultStep is how often the simulated motor reports its position.
	DefaultStep = 25 * time.Millisecond

	// FullTurn is one revolution of the songwheel in degrees.
	FullTurn = 360.0

	// SubdivisionsPerBeat is the number of sixteenth notes in a beat.
	SubdivisionsPerBeat = 4

	// resolution is the number of position steps per degree the motor
	// reports; positions are rounded to the nearest 1/resolution degree.
	resolution = 1e6
)

var (
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
	ErrTempo          = errors.New("tempo does not give whole steps per tick")
)

// DegreesPerStep is the rotation covered by one step at bpm: one tick
// increment per sixteenth note, scaled to the step length.
func DegreesPerStep(bpm float64, step time.Duration) float64 {
	// bpm*4/60 * step_s * 30, ordered so whole-degree steps come out exact
	return bpm * SubdivisionsPerBeat * TickDegrees * float64(step) / float64(time.Minute)
}

// CheckTempo reports ErrTempo unless a whole number of steps covers one
// tick. Other tempos skip over the 330 deg tick and stall the metronome.
// A zero step means DefaultStep.
func CheckTempo(bpm float64, step time.Duration) error {
	if step <= 0 {
		step = DefaultStep
	}
	deg := DegreesPerStep(bpm, step)
	if bpm <= 0 || deg <= 0 {
		return fmt.Errorf("%w: %v bpm", ErrTempo, bpm)
	}
	if !dividesTick(deg) {
		return fmt.Errorf("%w: %v bpm at %v steps moves %.4f deg per step", ErrTempo, bpm, step, deg)
	}
	return nil
}

func dividesTick(deg float64) bool {
	n := TickDegrees / deg
	return math.Abs(n-math.Round(n)) < 1e-9
}

// Motor simulates the songwheel's motor: it turns at a rate derived from the
// tempo and publishes its axle position after every step.
type Motor struct {
	bpm   float64
	step  time.Duration
	sched Scheduler
	moved Feed[float64]

	mu       sync.Mutex
	start    float64       // position before the first step
	steps    int64         // steps taken since start
	position float64       // degrees, [0, 360)
	elapsed  time.Duration // total simulated run time
	task     Task
}

// MotorOption configures a Motor.
type MotorOption func(*Motor)

// WithStep sets the interval between position updates.
func WithStep(d time.Duration) MotorOption {
	return func(m *Motor) {
		if d > 0 {
			m.step = d
		}
	}
}

// WithScheduler sets the timeline the motor steps on.
func WithScheduler(s Scheduler) MotorOption {
	return func(m *Motor) {
		if s != nil {
			m.sched = s
		}
	}
}

// WithPosition sets the starting axle position.
func WithPosition(deg float64) MotorOption {
	return func(m *Motor) {
		m.start = wrap(deg)
		m.position = m.start
	}
}

// NewMotor creates a stopped motor at position 0 turning at bpm.
func NewMotor(bpm float64, opts ...MotorOption) *Motor {
	m := &Motor{
		bpm:  bpm,
		step: DefaultStep,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sched == nil {
		m.sched = NewTimeline()
	}
	return m
}

// DegreesPerStep is the rotation covered by one step.
func (m *Motor) DegreesPerStep() float64 {
	return DegreesPerStep(m.bpm, m.step)
}

// Start begins turning. Starting a running motor changes nothing and returns
// ErrAlreadyRunning.
func (m *Motor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.task != nil {
		log.Println("Motor already started")
		return ErrAlreadyRunning
	}
	m.task = m.sched.Every(m.step, m.Advance)
	log.Printf("Motor started (bpm: %.1f, step: %v, %.2f deg/step)", m.bpm, m.step, m.DegreesPerStep())
	return nil
}

// Stop halts the motor. It is safe to call from a position or tick handler;
// no further step begins once it returns.
func (m *Motor) Stop() error {
	m.mu.Lock()
	task := m.task
	m.task = nil
	m.mu.Unlock()

	if task == nil {
		return ErrNotRunning
	}
	task.Cancel()
	log.Printf("Motor stopped at %.1f deg after %v", m.Position(), m.Elapsed())
	return nil
}

// Advance moves the axle by one step and publishes the new position. The
// position is derived from the step count and rounded to resolution, so
// float error never accumulates across steps.
func (m *Motor) Advance() {
	m.mu.Lock()
	m.steps++
	m.elapsed += m.step
	m.position = wrap(math.Round((m.start+float64(m.steps)*m.DegreesPerStep())*resolution) / resolution)
	pos := m.position
	m.mu.Unlock()

	m.moved.Publish(pos)
}

// Moved is the feed of positions published after each step.
func (m *Motor) Moved() *Feed[float64] {
	return &m.moved
}

// Position returns the current axle position in degrees.
func (m *Motor) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// Elapsed returns the simulated time the motor has been turning.
func (m *Motor) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.elapsed
}

// Running reports whether the motor is turning.
func (m *Motor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.task != nil
}

// BPM returns the tempo the motor was built for.
func (m *Motor) BPM() float64 {
	return m.bpm
}

// Scheduler returns the timeline the motor steps on.
func (m *Motor) Scheduler() Scheduler {
	return m.sched
}

func wrap(deg float64) float64 {
	deg = math.Mod(deg, FullTurn)
	if deg < 0 {
		deg += FullTurn
	}
	return deg
}
