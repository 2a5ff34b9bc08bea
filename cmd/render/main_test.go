package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/wav"
	"github.com/satindergrewal/songwheel/internal/audio"
	"github.com/satindergrewal/songwheel/internal/config"
	"github.com/satindergrewal/songwheel/internal/score"
	"github.com/satindergrewal/songwheel/internal/wheel"
)

func TestRenderTestScore(t *testing.T) {
	frames, sum, err := render(score.NewTestQueue(), 60, config.Defaults(), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Ticks != 13 || sum.Actuations != 4 || sum.Cancelled {
		t.Errorf("summary = %+v, want 13 ticks and 4 actuations", sum)
	}

	// 1s warm-up, 3.5s of ticks, 1s tail
	want := int((4500*time.Millisecond + tail) / audio.FrameDuration)
	if len(frames) != want {
		t.Errorf("rendered %d frames, want %d", len(frames), want)
	}

	silentUntil := int(time.Second / audio.FrameDuration)
	for i := 0; i < silentUntil; i++ {
		for _, v := range frames[i] {
			if v != 0 {
				t.Fatalf("frame %d not silent during warm-up", i)
			}
		}
	}
}

func TestRenderGivesUp(t *testing.T) {
	q := score.NewQueue()
	for i := 0; i < 100; i++ {
		q.Push(score.NoteGroup{0})
	}
	_, sum, err := render(q, 60, config.Defaults(), 5*time.Second)
	if !errors.Is(err, errTooLong) {
		t.Fatalf("err = %v, want errTooLong", err)
	}
	if !sum.Cancelled {
		t.Errorf("summary = %+v, want cancelled", sum)
	}
}

func TestRunWritesWAV(t *testing.T) {
	t.Setenv("SONGWHEEL_CONFIG", "")
	dir := t.TempDir()

	in := filepath.Join(dir, "score.mid")
	f, err := os.Create(in)
	if err != nil {
		t.Fatal(err)
	}
	if err := score.WriteMIDI(f, []score.NoteGroup{{1}, {3}, {0}, {5}}, 120, score.BaseKey); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out := filepath.Join(dir, "out.wav")
	if err := run([]string{"-in", in, "-out", out}); err != nil {
		t.Fatalf("run: %v", err)
	}

	r, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	dec, format, err := wav.Decode(r)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer dec.Close()
	if int(format.SampleRate) != audio.SampleRate {
		t.Errorf("SampleRate = %d, want %d", format.SampleRate, audio.SampleRate)
	}
	if dec.Len() == 0 {
		t.Error("empty render")
	}
}

func TestRunMissingInput(t *testing.T) {
	t.Setenv("SONGWHEEL_CONFIG", "")
	err := run([]string{"-in", filepath.Join(t.TempDir(), "nope.mid"), "-out", filepath.Join(t.TempDir(), "x.wav")})
	if err == nil {
		t.Error("missing input should fail")
	}
}

func TestRunRejectsTempo(t *testing.T) {
	t.Setenv("SONGWHEEL_CONFIG", "")
	err := run([]string{"-bpm", "90", "-out", filepath.Join(t.TempDir(), "x.wav")})
	if !errors.Is(err, wheel.ErrTempo) {
		t.Errorf("err = %v, want ErrTempo", err)
	}
}
