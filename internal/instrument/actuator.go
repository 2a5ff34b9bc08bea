package instrument

import "math"

const (
	// NumPicks is the number of picks around the wheel, one per scale degree.
	NumPicks = 12

	// PickSpacing is the angle between neighbouring picks in degrees.
	PickSpacing = 30.0

	fullTurn = 360.0
)

// NotePosition is a note's offset from pick 1 in degrees.
func NotePosition(note int) float64 {
	return float64(note)*PickSpacing - PickSpacing
}

// PickPosition is the angular position of a pick in degrees.
func PickPosition(pick int) float64 {
	return float64(pick)*PickSpacing - PickSpacing
}

// NextPick returns the pick the wheel reaches next from pos.
func NextPick(pos float64) int {
	return int(math.Floor(pos/PickSpacing)) + 1
}

// TargetPick returns the pick that strikes note when the wheel is at pos.
// The target wraps around the wheel, so the result is always in
// [1, NumPicks]. Rests return ok=false.
func TargetPick(note int, pos float64) (pick int, ok bool) {
	if note <= 0 {
		return 0, false
	}
	target := math.Mod(pos+NotePosition(note), fullTurn)
	if target < 0 {
		target += fullTurn
	}
	return NextPick(target), true
}
