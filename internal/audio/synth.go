package audio

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	attackTime = 3 * time.Millisecond
	decayTime  = 250 * time.Millisecond
	maxVoices  = 32
)

type voice struct {
	freq float64
	age  int // samples since the pick hit
}

// Synth is a software songwheel: every actuated pick starts a plucked tone
// and Render mixes the ringing tones into 20ms PCM frames.
type Synth struct {
	basePitch int
	gain      float64
	attack    int // samples
	decay     int // samples
	frameCh   chan []int16

	mu     sync.Mutex
	voices []voice
	plucks int
}

// NewSynth creates a synth where pick 1 sounds MIDI key basePitch. gain is
// the peak amplitude of one voice as a fraction of full scale.
func NewSynth(basePitch int, gain float64) *Synth {
	if gain <= 0 || gain > 1 {
		gain = 0.25
	}
	return &Synth{
		basePitch: basePitch,
		gain:      gain,
		attack:    int(attackTime.Seconds() * SampleRate),
		decay:     int(decayTime.Seconds() * SampleRate),
		frameCh:   make(chan []int16, 100),
	}
}

// Actuate plucks the tone for pick.
func (s *Synth) Actuate(pick int) {
	v := voice{freq: KeyFrequency(s.basePitch + pick - 1)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.voices) >= maxVoices {
		s.voices = s.voices[1:]
	}
	s.voices = append(s.voices, v)
	s.plucks++
}

// Voices returns the number of tones still ringing.
func (s *Synth) Voices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

// Plucks returns the number of picks actuated so far.
func (s *Synth) Plucks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plucks
}

// Render mixes the next 20ms of audio as interleaved stereo samples.
func (s *Synth) Render() []int16 {
	frame := make([]int16, FrameSamples)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < FrameSize; i++ {
		var mixed float64
		for j := range s.voices {
			v := &s.voices[j]
			phase := 2 * math.Pi * v.freq * float64(v.age) / SampleRate
			mixed += math.Sin(phase) * Pluck(v.age, s.attack, s.decay)
			v.age++
		}
		sample := clip(mixed * s.gain * 32767)
		frame[i*Channels] = sample
		frame[i*Channels+1] = sample
	}

	// drop voices once they have decayed below -52 dB
	limit := s.attack + 6*s.decay
	live := s.voices[:0]
	for _, v := range s.voices {
		if v.age < limit {
			live = append(live, v)
		}
	}
	s.voices = live

	return frame
}

// Frames returns the channel of rendered frames fed by Run.
func (s *Synth) Frames() <-chan []int16 {
	return s.frameCh
}

// Run renders a frame every 20ms until ctx is cancelled.
func (s *Synth) Run(ctx context.Context) {
	defer close(s.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		select {
		case s.frameCh <- s.Render():
		case <-ctx.Done():
			return
		}
	}
}
