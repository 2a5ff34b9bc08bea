package session

import (
	"context"
	"errors"
	"sync"

	"github.com/satindergrewal/songwheel/internal/instrument"
	"github.com/satindergrewal/songwheel/internal/musician"
	"github.com/satindergrewal/songwheel/internal/score"
	"github.com/satindergrewal/songwheel/internal/wheel"
)

var (
	ErrBusy = errors.New("a session is already playing")
	ErrIdle = errors.New("no session is playing")
)

// Status is a snapshot for the status API.
type Status struct {
	State      string   `json:"state"`
	BPM        float64  `json:"bpm"`
	Position   float64  `json:"position"`
	QueueSize  int      `json:"queue_size"`
	Ticks      int      `json:"ticks"`
	Actuations int      `json:"actuations"`
	Sessions   int      `json:"sessions"`
	Last       *Summary `json:"last,omitempty"`
}

// Manager runs one session at a time on a shared instrument.
type Manager struct {
	ctx  context.Context
	inst instrument.Instrument
	cfg  Config

	mu       sync.RWMutex
	current  *Session
	queue    *score.Queue
	bpm      float64
	sessions int
	last     *Summary
}

// NewManager creates a manager. Sessions end when ctx is cancelled.
func NewManager(ctx context.Context, inst instrument.Instrument, cfg Config) *Manager {
	return &Manager{ctx: ctx, inst: inst, cfg: cfg}
}

// Start plays q. bpm <= 0 uses the manager's default tempo. Tempos the
// wheel cannot tick at return wheel.ErrTempo. onComplete may be nil.
func (m *Manager) Start(q *score.Queue, bpm float64, onComplete func(Summary)) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return nil, ErrBusy
	}

	cfg := m.cfg
	if bpm > 0 {
		cfg.BPM = bpm
	}
	if cfg.BPM <= 0 {
		cfg.BPM = DefaultBPM
	}
	if err := wheel.CheckTempo(cfg.BPM, cfg.Step); err != nil {
		return nil, err
	}

	var s *Session
	s = Run(m.ctx, q, m.inst, func(sum Summary) {
		m.mu.Lock()
		if m.current == s {
			m.current = nil
		}
		m.last = &sum
		m.mu.Unlock()
		if onComplete != nil {
			onComplete(sum)
		}
	}, cfg)

	m.current = s
	m.queue = q
	m.bpm = cfg.BPM
	m.sessions++
	return s, nil
}

// Stop cancels the playing session.
func (m *Manager) Stop() error {
	m.mu.RLock()
	s := m.current
	m.mu.RUnlock()
	if s == nil {
		return ErrIdle
	}
	s.Stop()
	return nil
}

// Status reports the current or last session.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{
		State:    musician.Idle.String(),
		Sessions: m.sessions,
		Last:     m.last,
	}
	if s := m.current; s != nil {
		st.State = s.State().String()
		st.BPM = m.bpm
		st.Position = s.Position()
		st.QueueSize = m.queue.Len()
		st.Ticks = s.Ticks()
		st.Actuations = s.Actuations()
	}
	return st
}
