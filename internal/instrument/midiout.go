package instrument

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// noteLength is how long a pick's note sounds on a MIDI synth.
const noteLength = 150 * time.Millisecond

// MIDIOut plays each pick as a note on a MIDI output port. Pick 1 sounds
// basePitch; each pick above it is one semitone higher.
type MIDIOut struct {
	send      func(midi.Message) error
	channel   uint8
	basePitch uint8
	velocity  uint8
	close     func()

	mu      sync.Mutex
	closed  bool
	pending map[*time.Timer]uint8 // note-off timers and their keys
}

// NewMIDIOut plays through send. Exposed for tests and for callers that
// manage their own port.
func NewMIDIOut(send func(midi.Message) error, channel, basePitch uint8) *MIDIOut {
	return &MIDIOut{
		send:      send,
		channel:   channel,
		basePitch: basePitch,
		velocity:  100,
		pending:   make(map[*time.Timer]uint8),
	}
}

// OpenMIDIOut connects to the first output port whose name contains
// portName (case-insensitive). An empty name picks the first port.
func OpenMIDIOut(portName string, channel, basePitch uint8) (*MIDIOut, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}

	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("list midi outputs: %w", err)
	}

	var port drivers.Out
	for _, out := range outs {
		if portName == "" || strings.Contains(strings.ToLower(out.String()), strings.ToLower(portName)) {
			port = out
			break
		}
	}
	if port == nil {
		drv.Close()
		return nil, fmt.Errorf("midi output %q not found", portName)
	}
	if err := port.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("open %q: %w", port.String(), err)
	}

	send, err := midi.SendTo(port)
	if err != nil {
		port.Close()
		drv.Close()
		return nil, fmt.Errorf("send to %q: %w", port.String(), err)
	}

	log.Printf("MIDI output connected: %s (channel %d)", port.String(), channel)
	m := NewMIDIOut(send, channel, basePitch)
	m.close = func() {
		port.Close()
		drv.Close()
	}
	return m, nil
}

// Key returns the MIDI key a pick sounds.
func (m *MIDIOut) Key(pick int) uint8 {
	return m.basePitch + uint8(pick-1)
}

// Actuate sends note-on now and note-off after noteLength. It does nothing
// once the output is closed.
func (m *MIDIOut) Actuate(pick int) {
	key := m.Key(pick)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if err := m.send(midi.NoteOn(m.channel, key, m.velocity)); err != nil {
		log.Printf("MIDI send error (pick %d): %v", pick, err)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(noteLength, func() { m.noteOff(t) })
	m.pending[t] = key
}

func (m *MIDIOut) noteOff(t *time.Timer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.pending[t]
	if !ok {
		return
	}
	delete(m.pending, t)
	if err := m.send(midi.NoteOff(m.channel, key)); err != nil {
		log.Printf("MIDI note off error (key %d): %v", key, err)
	}
}

// Close ends any sounding notes, then releases the port and driver. Timers
// still pending are stopped, so nothing is sent after Close returns.
func (m *MIDIOut) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for t, key := range m.pending {
		t.Stop()
		if err := m.send(midi.NoteOff(m.channel, key)); err != nil {
			log.Printf("MIDI note off error (key %d): %v", key, err)
		}
	}
	clear(m.pending)
	m.mu.Unlock()

	if m.close != nil {
		m.close()
	}
}
