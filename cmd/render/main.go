// Command render plays a score on a virtual wheel and writes what the
// synthesized songwheel would sound like to a WAV file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/satindergrewal/songwheel/internal/audio"
	"github.com/satindergrewal/songwheel/internal/config"
	"github.com/satindergrewal/songwheel/internal/score"
	"github.com/satindergrewal/songwheel/internal/session"
	"github.com/satindergrewal/songwheel/internal/wheel"
)

const tail = time.Second

var errTooLong = errors.New("score did not finish")

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("render: %v", err)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	in := fs.String("in", "", "MIDI file to render (default: built-in test score)")
	out := fs.String("out", "songwheel.wav", "output WAV file")
	bpm := fs.Float64("bpm", 0, "tempo override (default: file tempo, else config)")
	maxLen := fs.Duration("max", 10*time.Minute, "give up after this much wheel time")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q, tempo, err := loadScore(*in, cfg.BPM, cfg.BasePitch)
	if err != nil {
		return err
	}
	if *bpm > 0 {
		tempo = *bpm
	}
	if err := wheel.CheckTempo(tempo, cfg.Step); err != nil {
		return err
	}

	frames, sum, err := render(q, tempo, cfg, *maxLen)
	if err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()
	if err := audio.WriteWAV(f, frames); err != nil {
		return err
	}

	log.Printf("Rendered %s (%d groups, %d picks, %v at %.0f bpm)",
		*out, sum.Ticks, sum.Actuations, time.Duration(len(frames))*audio.FrameDuration, tempo)
	return nil
}

// loadScore reads path as a MIDI file with baseKey as pick 1, or returns the
// test score when path is empty.
func loadScore(path string, fallbackBPM float64, baseKey int) (*score.Queue, float64, error) {
	if path == "" {
		return score.NewTestQueue(), fallbackBPM, nil
	}
	sc, err := score.LoadMIDI(path, baseKey)
	if err != nil {
		return nil, 0, err
	}
	q, err := sc.Queue()
	if err != nil {
		return nil, 0, err
	}
	tempo := sc.BPM
	if tempo <= 0 {
		tempo = fallbackBPM
	}
	return q, tempo, nil
}

// render drives a session on virtual time, one audio frame per step, then
// lets the last notes ring out.
func render(q *score.Queue, bpm float64, cfg config.Config, maxLen time.Duration) ([][]int16, session.Summary, error) {
	sched := wheel.NewManualScheduler()
	synth := audio.NewSynth(cfg.BasePitch, cfg.SynthGain)

	s := session.Run(context.Background(), q, synth, nil, session.Config{
		BPM:       bpm,
		Step:      cfg.Step,
		WarmUp:    cfg.WarmUp,
		Scheduler: sched,
	})

	var frames [][]int16
	for {
		select {
		case <-s.Done():
			for i := 0; i < int(tail/audio.FrameDuration); i++ {
				frames = append(frames, synth.Render())
			}
			return frames, s.Summary(), nil
		default:
		}
		if sched.Now() >= maxLen {
			s.Stop()
			return nil, s.Summary(), fmt.Errorf("%w after %v", errTooLong, maxLen)
		}
		sched.Advance(audio.FrameDuration)
		frames = append(frames, synth.Render())
	}
}
