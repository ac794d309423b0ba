// Package grade maps scores to letter grades and computes grade point averages.
//
// Everything here is pure: no I/O, no shared state. Callers validate score and
// semester ranges before handing values to this package.
package grade

import "math"

// Letter is a single-letter grade.
type Letter string

const (
	A Letter = "A"
	B Letter = "B"
	C Letter = "C"
	D Letter = "D"
	F Letter = "F"
)

// Letters lists every valid letter, best first.
var Letters = []Letter{A, B, C, D, F}

// threshold is the inclusive lower bound of a letter band.
type threshold struct {
	min    float64
	letter Letter
}

// thresholds are evaluated top-down; the first match wins.
var thresholds = []threshold{
	{90, A},
	{80, B},
	{70, C},
	{60, D},
}

// FromScore returns the letter grade for a score.
// Out-of-range scores still map through the same bands; reject them upstream.
func FromScore(score float64) Letter {
	for _, t := range thresholds {
		if score >= t.min {
			return t.letter
		}
	}
	return F
}

// Point returns the grade-point value of a letter. Unknown letters are worth 0.
func Point(l Letter) float64 {
	switch l {
	case A:
		return 4.0
	case B:
		return 3.0
	case C:
		return 2.0
	case D:
		return 1.0
	default:
		return 0.0
	}
}

// Valid reports whether l is one of A, B, C, D or F.
func (l Letter) Valid() bool {
	for _, v := range Letters {
		if l == v {
			return true
		}
	}
	return false
}

// Round2 rounds to two decimal places. Use it for presentation only.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
