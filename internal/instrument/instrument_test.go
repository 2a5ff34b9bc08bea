package instrument

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// --- Actuator map ---

func TestPositions(t *testing.T) {
	for n := 1; n <= NumPicks; n++ {
		want := float64(n-1) * 30
		if got := NotePosition(n); got != want {
			t.Errorf("NotePosition(%d) = %v, want %v", n, got, want)
		}
		if got := PickPosition(n); got != want {
			t.Errorf("PickPosition(%d) = %v, want %v", n, got, want)
		}
		if got := NextPick(PickPosition(n)); got != n {
			t.Errorf("NextPick(PickPosition(%d)) = %d, want %d", n, got, n)
		}
	}
}

func TestNextPick(t *testing.T) {
	tests := []struct {
		pos  float64
		want int
	}{
		{0, 1},
		{29.9, 1},
		{30, 2},
		{45, 2},
		{330, 12},
		{359.9, 12},
	}
	for _, tt := range tests {
		if got := NextPick(tt.pos); got != tt.want {
			t.Errorf("NextPick(%v) = %d, want %d", tt.pos, got, tt.want)
		}
	}
}

func TestTargetPickRangeClosure(t *testing.T) {
	for p := 0.0; p < 330; p += 0.5 {
		for n := 1; n <= NumPicks; n++ {
			pick, ok := TargetPick(n, p)
			if !ok {
				t.Fatalf("TargetPick(%d, %v) reported a rest", n, p)
			}
			if pick < 1 || pick > NumPicks {
				t.Fatalf("TargetPick(%d, %v) = %d, outside [1,12]", n, p, pick)
			}
		}
	}
}

func TestTargetPick(t *testing.T) {
	tests := []struct {
		note int
		pos  float64
		want int
	}{
		{1, 30, 2},
		{1, 0, 1},
		{4, 0, 4},
		{4, 60, 6},
		{12, 300, 10}, // 300 + 330 wraps to 270
		{12, 30, 1},   // 30 + 330 wraps to 0
	}
	for _, tt := range tests {
		got, ok := TargetPick(tt.note, tt.pos)
		if !ok || got != tt.want {
			t.Errorf("TargetPick(%d, %v) = (%d, %v), want (%d, true)", tt.note, tt.pos, got, ok, tt.want)
		}
	}
}

func TestTargetPickRest(t *testing.T) {
	if _, ok := TargetPick(0, 90); ok {
		t.Error("rest should not produce an actuation")
	}
}

// --- Sinks ---

func TestMultiAndFunc(t *testing.T) {
	var got []int
	rec := &Recorder{}
	m := Multi{rec, Func(func(p int) { got = append(got, p*10) })}
	m.Actuate(3)
	m.Actuate(7)

	if picks := rec.Picks(); len(picks) != 2 || picks[0] != 3 || picks[1] != 7 {
		t.Errorf("recorder picks = %v, want [3 7]", picks)
	}
	if len(got) != 2 || got[0] != 30 || got[1] != 70 {
		t.Errorf("func sink saw %v, want [30 70]", got)
	}
}

func TestConsoleDoesNotPanic(t *testing.T) {
	Console{}.Actuate(5)
}

// --- Serial ---

func TestEncodeActuate(t *testing.T) {
	frame := EncodeActuate(7, 3)
	want := []byte{0xAA, 0x55, 3, 0x20, 7, 3, 3 ^ 0x20 ^ 7 ^ 3}
	if !bytes.Equal(frame, want) {
		t.Errorf("EncodeActuate = % x, want % x", frame, want)
	}
}

func TestSerialSequence(t *testing.T) {
	var buf bytes.Buffer
	s := NewSerial(&buf)
	s.Actuate(1)
	s.Actuate(12)

	out := buf.Bytes()
	if len(out) != 14 {
		t.Fatalf("wrote %d bytes, want 14", len(out))
	}
	if out[4] != 1 || out[5] != 0 {
		t.Errorf("first frame pick/seq = %d/%d, want 1/0", out[4], out[5])
	}
	if out[11] != 12 || out[12] != 1 {
		t.Errorf("second frame pick/seq = %d/%d, want 12/1", out[11], out[12])
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on non-closer: %v", err)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("unplugged") }

func TestSerialWriteErrorIsDropped(t *testing.T) {
	s := NewSerial(failWriter{})
	s.Actuate(4) // logged, must not panic
}

// --- MIDI out ---

func TestMIDIOut(t *testing.T) {
	var mu sync.Mutex
	var msgs []midi.Message
	done := make(chan struct{}, 1)

	out := NewMIDIOut(func(m midi.Message) error {
		mu.Lock()
		msgs = append(msgs, m)
		n := len(msgs)
		mu.Unlock()
		if n == 2 {
			done <- struct{}{}
		}
		return nil
	}, 2, 57)

	if out.Key(1) != 57 || out.Key(12) != 68 {
		t.Errorf("Key(1)=%d Key(12)=%d, want 57 and 68", out.Key(1), out.Key(12))
	}

	out.Actuate(4)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for note off")
	}

	mu.Lock()
	defer mu.Unlock()
	var ch, key, vel uint8
	if !msgs[0].GetNoteStart(&ch, &key, &vel) || ch != 2 || key != 60 {
		t.Errorf("first message = %v, want note on ch 2 key 60", msgs[0])
	}
	if !msgs[1].GetNoteEnd(&ch, &key) || key != 60 {
		t.Errorf("second message = %v, want note off key 60", msgs[1])
	}
	out.Close()
}

func TestMIDIOutClose(t *testing.T) {
	var mu sync.Mutex
	var msgs []midi.Message
	released := 0

	out := NewMIDIOut(func(m midi.Message) error {
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
		return nil
	}, 0, 57)
	out.close = func() { released++ }

	out.Actuate(1)
	out.Actuate(5)
	out.Close()
	out.Close()

	if released != 1 {
		t.Errorf("port released %d times, want 1", released)
	}

	mu.Lock()
	if len(msgs) != 4 {
		t.Fatalf("sent %d messages before close returned, want 4: %v", len(msgs), msgs)
	}
	offs := map[uint8]bool{}
	var ch, key uint8
	for _, m := range msgs[2:] {
		if !m.GetNoteEnd(&ch, &key) {
			t.Errorf("message %v after close, want note off", m)
		}
		offs[key] = true
	}
	mu.Unlock()
	if !offs[57] || !offs[61] {
		t.Errorf("note offs for keys %v, want 57 and 61", offs)
	}

	out.Actuate(3)
	time.Sleep(2 * noteLength)

	mu.Lock()
	defer mu.Unlock()
	if len(msgs) != 4 {
		t.Errorf("sent %d messages after close, want none: %v", len(msgs)-4, msgs[4:])
	}
}
