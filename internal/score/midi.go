package score

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	// BaseKey is the default MIDI key of scale degree 1 (A3).
	BaseKey = 57

	// MaxGroups caps the length of a decoded score: 65536 sixteenths is
	// over an hour at 60 bpm.
	MaxGroups = 1 << 16

	// SubdivisionsPerQuarter is the number of note groups per quarter note.
	SubdivisionsPerQuarter = 4

	// ticksPerQuarter is the resolution used when writing files.
	ticksPerQuarter = 480
)

var (
	ErrNoNotes = errors.New("no notes in file")
	ErrTooLong = errors.New("score too long")
	ErrBaseKey = errors.New("base key out of range")
)

// Score is a decoded MIDI file: one NoteGroup per sixteenth note, plus the
// file's first tempo (0 if it has none).
type Score struct {
	Groups []NoteGroup
	BPM    float64
}

// Queue validates the groups and returns them as a playable queue.
func (s *Score) Queue() (*Queue, error) {
	return FromGroups(s.Groups)
}

// Degree folds a MIDI key onto the twelve picks; base and every octave of
// it map to degree 1.
func Degree(key uint8, base int) int {
	return ((int(key)-base)%12+12)%12 + 1
}

func checkBase(base int) error {
	if base < 0 || base+MaxDegree-1 > 127 {
		return fmt.Errorf("%w: %d", ErrBaseKey, base)
	}
	return nil
}

// LoadMIDI reads a standard MIDI file from disk. base is the key of
// degree 1, the same key the instruments sound for pick 1.
func LoadMIDI(path string, base int) (*Score, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open midi: %w", err)
	}
	defer f.Close()
	return ReadMIDI(f, base)
}

// ReadMIDI decodes a standard MIDI file. Note starts on every track are
// snapped to the nearest sixteenth note and folded onto scale degrees
// counted from base; sixteenths without a note become rests. Scores longer
// than MaxGroups fail with ErrTooLong.
func ReadMIDI(r io.Reader, base int) (*Score, error) {
	if err := checkBase(base); err != nil {
		return nil, err
	}
	file, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read midi: %w", err)
	}

	ticks, ok := file.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("read midi: unsupported time format %v", file.TimeFormat)
	}
	perSlot := uint64(ticks.Ticks4th() / SubdivisionsPerQuarter)
	if perSlot == 0 {
		return nil, fmt.Errorf("read midi: resolution %d too small", ticks.Ticks4th())
	}

	sc := &Score{}
	slots := make(map[int]map[int]bool)
	last := -1

	for _, track := range file.Tracks {
		var abs uint64
		for _, ev := range track {
			abs += uint64(ev.Delta)

			var bpm float64
			if sc.BPM == 0 && ev.Message.GetMetaTempo(&bpm) {
				sc.BPM = bpm
			}

			var ch, key, vel uint8
			if !midi.Message(ev.Message).GetNoteStart(&ch, &key, &vel) {
				continue
			}
			n := (abs + perSlot/2) / perSlot
			if n >= MaxGroups {
				return nil, fmt.Errorf("%w: note at sixteenth %d, limit %d", ErrTooLong, n, MaxGroups)
			}
			slot := int(n)
			if slots[slot] == nil {
				slots[slot] = make(map[int]bool)
			}
			slots[slot][Degree(key, base)] = true
			if slot > last {
				last = slot
			}
		}
	}

	if last < 0 {
		return nil, ErrNoNotes
	}

	sc.Groups = make([]NoteGroup, last+1)
	for i := range sc.Groups {
		notes := slots[i]
		if len(notes) == 0 {
			sc.Groups[i] = NoteGroup{Rest}
			continue
		}
		g := make(NoteGroup, 0, len(notes))
		for n := range notes {
			g = append(g, n)
		}
		sort.Ints(g)
		sc.Groups[i] = g
	}
	return sc, nil
}

// WriteMIDI encodes groups as a single-track MIDI file. Each note sounds for
// half a sixteenth; degrees map back to keys base..base+11.
func WriteMIDI(w io.Writer, groups []NoteGroup, bpm float64, base int) error {
	if err := checkBase(base); err != nil {
		return err
	}
	file := smf.New()
	file.TimeFormat = smf.MetricTicks(ticksPerQuarter)
	perSlot := uint32(ticksPerQuarter / SubdivisionsPerQuarter)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	if bpm > 0 {
		tempo.Add(0, smf.MetaTempo(bpm))
	}
	tempo.Close(0)
	if err := file.Add(tempo); err != nil {
		return fmt.Errorf("add tempo track: %w", err)
	}

	var notes smf.Track
	var cursor uint32
	for i, g := range groups {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("group %d: %w", i, err)
		}
		if g.IsRest() {
			continue
		}
		start := uint32(i) * perSlot
		delta := start - cursor
		var keys []uint8
		for _, n := range g {
			if n == Rest {
				continue
			}
			key := uint8(base + n - 1)
			keys = append(keys, key)
			notes.Add(delta, midi.NoteOn(0, key, 100))
			delta = 0
		}
		delta = perSlot / 2
		for _, key := range keys {
			notes.Add(delta, midi.NoteOff(0, key))
			delta = 0
		}
		cursor = start + perSlot/2
	}
	notes.Close(0)
	if err := file.Add(notes); err != nil {
		return fmt.Errorf("add note track: %w", err)
	}

	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("write midi: %w", err)
	}
	return nil
}
