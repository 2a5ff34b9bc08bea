package audio

import (
	"fmt"
	"io"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// Format is the beep format of rendered audio.
var Format = beep.Format{
	SampleRate:  beep.SampleRate(SampleRate),
	NumChannels: Channels,
	Precision:   BitDepth / 8,
}

// frameStreamer plays back rendered frames as a beep.Streamer.
type frameStreamer struct {
	frames [][]int16
	frame  int
	pos    int // sample index within the current frame
}

// NewStreamer wraps rendered frames so beep can mix, resample or encode them.
func NewStreamer(frames [][]int16) beep.Streamer {
	return &frameStreamer{frames: frames}
}

func (f *frameStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		if f.frame >= len(f.frames) {
			return n, n > 0
		}
		cur := f.frames[f.frame]
		if f.pos+1 >= len(cur) {
			f.frame++
			f.pos = 0
			continue
		}
		samples[n][0] = float64(cur[f.pos]) / 32768
		samples[n][1] = float64(cur[f.pos+1]) / 32768
		f.pos += Channels
		n++
	}
	return n, true
}

func (f *frameStreamer) Err() error { return nil }

// WriteWAV encodes rendered frames as a 16-bit stereo WAV file.
func WriteWAV(w io.WriteSeeker, frames [][]int16) error {
	if err := wav.Encode(w, NewStreamer(frames), Format); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}
