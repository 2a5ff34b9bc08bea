package audio

import "math"

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// Pluck is the amplitude of a plucked string n samples after the pick hits:
// a smoothstep attack over attack samples, then exponential decay with time
// constant decay samples.
func Pluck(n, attack, decay int) float64 {
	t := float64(n)
	a := 1.0
	if attack > 0 {
		a = Smoothstep(t / float64(attack))
	}
	return a * math.Exp(-t/float64(decay))
}

// KeyFrequency returns the equal-tempered frequency of a MIDI key (A4 = 440 Hz).
func KeyFrequency(key int) float64 {
	return 440 * math.Pow(2, float64(key-69)/12)
}

// clip converts a mixed sample to int16, saturating at the range limits.
func clip(v float64) int16 {
	if v > 32767 {
		return 32767
	} else if v < -32768 {
		return -32768
	}
	return int16(v)
}
