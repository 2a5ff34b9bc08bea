package score

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// --- Queue ---

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	in := []NoteGroup{{1}, {0}, {4, 8, 11}, {12}, {0, 3}}
	for i, g := range in {
		n, err := q.Push(g)
		if err != nil {
			t.Fatalf("Push(%v): %v", g, err)
		}
		if n != i+1 {
			t.Errorf("Push returned length %d, want %d", n, i+1)
		}
	}

	for i, want := range in {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop %d: queue empty early", i)
		}
		if !equal(got, want) {
			t.Errorf("Pop %d = %v, want %v", i, got, want)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len after draining = %d, want 0", q.Len())
	}
}

func TestPopEmpty(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 3; i++ {
		g, ok := q.Pop()
		if ok || g != nil {
			t.Errorf("Pop on empty = (%v, %v), want (nil, false)", g, ok)
		}
	}
}

func TestQueueReusableAfterDrain(t *testing.T) {
	q := NewQueue()
	q.Push(NoteGroup{1})
	q.Pop()
	q.Push(NoteGroup{2})
	q.Push(NoteGroup{3})
	if g, _ := q.Pop(); !equal(g, NoteGroup{2}) {
		t.Errorf("Pop after refill = %v, want [2]", g)
	}
	if g, _ := q.Pop(); !equal(g, NoteGroup{3}) {
		t.Errorf("second Pop after refill = %v, want [3]", g)
	}
}

func TestPushInvalid(t *testing.T) {
	tests := []struct {
		name  string
		group NoteGroup
	}{
		{"nil", nil},
		{"negative", NoteGroup{-1}},
		{"too high", NoteGroup{13}},
		{"one bad in chord", NoteGroup{4, 8, 20}},
	}
	for _, tt := range tests {
		q := NewQueue()
		q.Push(NoteGroup{1})
		n, err := q.Push(tt.group)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", tt.name, err)
		}
		if n != 1 || q.Len() != 1 {
			t.Errorf("%s: queue length changed to %d", tt.name, q.Len())
		}
	}
}

func TestPushCopiesGroup(t *testing.T) {
	q := NewQueue()
	g := NoteGroup{4, 8, 11}
	q.Push(g)
	g[0] = 12
	got, _ := q.Pop()
	if got[0] != 4 {
		t.Errorf("queued group changed with caller's slice: %v", got)
	}
}

func TestFromGroups(t *testing.T) {
	q, err := FromGroups([]NoteGroup{{1}, {2}})
	if err != nil {
		t.Fatal(err)
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}

	if _, err := FromGroups([]NoteGroup{{1}, {99}}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("FromGroups with bad group: err = %v, want ErrInvalidInput", err)
	}
}

func TestNewTestQueue(t *testing.T) {
	q := NewTestQueue()
	if q.Len() != 13 {
		t.Fatalf("Len = %d, want 13", q.Len())
	}
	for i := 0; i < 13; i++ {
		g, _ := q.Pop()
		want := NoteGroup{0}
		if i%4 == 0 {
			want = NoteGroup{1}
		}
		if !equal(g, want) {
			t.Errorf("group %d = %v, want %v", i, g, want)
		}
	}
}

func TestIsRest(t *testing.T) {
	if !(NoteGroup{0}).IsRest() || !(NoteGroup{0, 0}).IsRest() {
		t.Error("all-zero group should be a rest")
	}
	if (NoteGroup{0, 5}).IsRest() {
		t.Error("group with a note is not a rest")
	}
}

// --- MIDI ---

func TestDegree(t *testing.T) {
	tests := []struct {
		key  uint8
		base int
		want int
	}{
		{57, BaseKey, 1},  // A3
		{60, BaseKey, 4},  // C4
		{64, BaseKey, 8},  // E4
		{67, BaseKey, 11}, // G4
		{68, BaseKey, 12}, // G#4
		{69, BaseKey, 1},  // A4
		{56, BaseKey, 12}, // G#3
		{21, BaseKey, 1},  // A0
		{60, 60, 1},       // C4 on a C wheel
		{57, 60, 10},
		{72, 60, 1},
	}
	for _, tt := range tests {
		if got := Degree(tt.key, tt.base); got != tt.want {
			t.Errorf("Degree(%d, %d) = %d, want %d", tt.key, tt.base, got, tt.want)
		}
	}
}

func TestMIDIRoundTrip(t *testing.T) {
	groups := []NoteGroup{{1}, {0}, {4, 8, 11}, {0}, {0}, {12}}
	var buf bytes.Buffer
	if err := WriteMIDI(&buf, groups, 96, BaseKey); err != nil {
		t.Fatalf("WriteMIDI: %v", err)
	}

	sc, err := ReadMIDI(&buf, BaseKey)
	if err != nil {
		t.Fatalf("ReadMIDI: %v", err)
	}
	if sc.BPM < 95.9 || sc.BPM > 96.1 {
		t.Errorf("BPM = %v, want 96", sc.BPM)
	}
	if len(sc.Groups) != len(groups) {
		t.Fatalf("decoded %d groups, want %d: %v", len(sc.Groups), len(groups), sc.Groups)
	}
	for i := range groups {
		if !equal(sc.Groups[i], groups[i]) {
			t.Errorf("group %d = %v, want %v", i, sc.Groups[i], groups[i])
		}
	}
}

func TestReadMIDIQuantisesAndFolds(t *testing.T) {
	file := smf.New()
	file.TimeFormat = smf.MetricTicks(96) // 24 ticks per sixteenth

	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 90))  // C4 on slot 0
	tr.Add(10, midi.NoteOff(0, 60))    // tick 10
	tr.Add(40, midi.NoteOn(0, 81, 90)) // tick 50, A5 rounds to slot 2
	tr.Add(0, midi.NoteOn(0, 45, 90))  // A2 folds onto the same degree
	tr.Add(20, midi.NoteOff(0, 81))
	tr.Add(0, midi.NoteOff(0, 45))
	tr.Close(0)
	if err := file.Add(tr); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	sc, err := ReadMIDI(&buf, BaseKey)
	if err != nil {
		t.Fatalf("ReadMIDI: %v", err)
	}
	want := []NoteGroup{{4}, {0}, {1}}
	if len(sc.Groups) != len(want) {
		t.Fatalf("groups = %v, want %v", sc.Groups, want)
	}
	for i := range want {
		if !equal(sc.Groups[i], want[i]) {
			t.Errorf("group %d = %v, want %v", i, sc.Groups[i], want[i])
		}
	}
	if sc.BPM != 0 {
		t.Errorf("BPM = %v, want 0 for a file without tempo", sc.BPM)
	}
}

func TestReadMIDINoNotes(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMIDI(&buf, []NoteGroup{{0}, {0}}, 120, BaseKey); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadMIDI(&buf, BaseKey); !errors.Is(err, ErrNoNotes) {
		t.Errorf("err = %v, want ErrNoNotes", err)
	}
}

func TestReadMIDIGarbage(t *testing.T) {
	if _, err := ReadMIDI(bytes.NewReader([]byte("not a midi file")), BaseKey); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestLoadMIDI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "score.mid")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteMIDI(f, []NoteGroup{{1}, {0}, {5}}, 60, BaseKey); err != nil {
		t.Fatal(err)
	}
	f.Close()

	sc, err := LoadMIDI(path, BaseKey)
	if err != nil {
		t.Fatalf("LoadMIDI: %v", err)
	}
	q, err := sc.Queue()
	if err != nil {
		t.Fatal(err)
	}
	if q.Len() != 3 {
		t.Errorf("queue length = %d, want 3", q.Len())
	}

	if _, err := LoadMIDI(filepath.Join(t.TempDir(), "missing.mid"), BaseKey); err == nil {
		t.Error("expected error for missing file")
	}
}

// --- helpers ---

func equal(a, b NoteGroup) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMIDIBaseKey(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMIDI(&buf, []NoteGroup{{1}, {5}}, 120, 60); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()

	sc, err := ReadMIDI(bytes.NewReader(raw), 60)
	if err != nil {
		t.Fatalf("ReadMIDI: %v", err)
	}
	if len(sc.Groups) != 2 || !equal(sc.Groups[0], NoteGroup{1}) || !equal(sc.Groups[1], NoteGroup{5}) {
		t.Errorf("groups = %v, want [[1] [5]]", sc.Groups)
	}

	// keys 60 and 64 read against the default A base
	sc, err = ReadMIDI(bytes.NewReader(raw), BaseKey)
	if err != nil {
		t.Fatalf("ReadMIDI: %v", err)
	}
	if len(sc.Groups) != 2 || !equal(sc.Groups[0], NoteGroup{4}) || !equal(sc.Groups[1], NoteGroup{8}) {
		t.Errorf("groups = %v, want [[4] [8]]", sc.Groups)
	}
}

func TestMIDIBaseKeyRange(t *testing.T) {
	for _, base := range []int{-1, 117, 200} {
		if err := WriteMIDI(&bytes.Buffer{}, []NoteGroup{{1}}, 120, base); !errors.Is(err, ErrBaseKey) {
			t.Errorf("WriteMIDI base %d: err = %v, want ErrBaseKey", base, err)
		}
		if _, err := ReadMIDI(bytes.NewReader(nil), base); !errors.Is(err, ErrBaseKey) {
			t.Errorf("ReadMIDI base %d: err = %v, want ErrBaseKey", base, err)
		}
	}
	if err := WriteMIDI(&bytes.Buffer{}, []NoteGroup{{12}}, 120, 116); err != nil {
		t.Errorf("WriteMIDI base 116: %v", err)
	}
}

func TestReadMIDITooLong(t *testing.T) {
	file := smf.New()
	file.TimeFormat = smf.MetricTicks(4) // one tick per sixteenth

	var tr smf.Track
	tr.Add(50_000_000, midi.NoteOn(0, 60, 100))
	tr.Close(0)
	if err := file.Add(tr); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadMIDI(&buf, BaseKey); !errors.Is(err, ErrTooLong) {
		t.Errorf("err = %v, want ErrTooLong", err)
	}
}

func TestReadMIDIAtLimit(t *testing.T) {
	file := smf.New()
	file.TimeFormat = smf.MetricTicks(4)

	var tr smf.Track
	tr.Add(MaxGroups-1, midi.NoteOn(0, 57, 100))
	tr.Close(0)
	if err := file.Add(tr); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	sc, err := ReadMIDI(&buf, BaseKey)
	if err != nil {
		t.Fatalf("ReadMIDI: %v", err)
	}
	if len(sc.Groups) != MaxGroups {
		t.Errorf("groups = %d, want %d", len(sc.Groups), MaxGroups)
	}
}
