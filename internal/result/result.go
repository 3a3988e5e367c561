// Package result derives the canonical result artifacts from a market's
// drawn numbers: single digits, jodi, and panna classification.
//
// Everything here is pure: the output is fully determined by the input
// strings, so declaration behavior is testable without any storage.
package result

import (
	"errors"
	"fmt"

	"github.com/damru/matka-engine/internal/model"
)

// ErrMalformedDraw is returned when a draw is not exactly three ASCII
// digits.
var ErrMalformedDraw = errors.New("result: draw must be exactly three digits")

// PannaClass is the repetition pattern of a 3-digit panna.
type PannaClass string

const (
	PannaSingle PannaClass = "single" // all digits distinct
	PannaDouble PannaClass = "double" // exactly two digits equal
	PannaTriple PannaClass = "triple" // all three digits equal
)

// validDraw reports whether s is exactly three ASCII digits.
func validDraw(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// singleDigit returns the digit sum of a valid 3-digit draw, mod 10.
func singleDigit(draw string) int {
	sum := 0
	for i := 0; i < 3; i++ {
		sum += int(draw[i] - '0')
	}
	return sum % 10
}

// Classify returns the panna class of a 3-digit string. It is total over
// valid draws: every draw maps to exactly one class.
func Classify(panna string) PannaClass {
	a, b, c := panna[0], panna[1], panna[2]
	switch {
	case a == b && b == c:
		return PannaTriple
	case a == b || a == c || b == c:
		return PannaDouble
	default:
		return PannaSingle
	}
}

// Derive computes the full result set for an open/close draw pair.
// The jodi keeps its leading zero: open=100, close=550 → "10".
func Derive(open, close string) (model.ResultSet, error) {
	if !validDraw(open) {
		return model.ResultSet{}, fmt.Errorf("%w: open %q", ErrMalformedDraw, open)
	}
	if !validDraw(close) {
		return model.ResultSet{}, fmt.Errorf("%w: close %q", ErrMalformedDraw, close)
	}

	openDigit := singleDigit(open)
	closeDigit := singleDigit(close)

	return model.ResultSet{
		OpenNumber:       open,
		CloseNumber:      close,
		OpenSingleDigit:  openDigit,
		CloseSingleDigit: closeDigit,
		Jodi:             fmt.Sprintf("%d%d", openDigit, closeDigit),
		OpenPanna:        open,
		ClosePanna:       close,
	}, nil
}

// DeriveOpen computes only the open-side fields. Used by the open-leg
// publication path, which publishes a partial result without settling.
func DeriveOpen(open string) (model.ResultSet, error) {
	if !validDraw(open) {
		return model.ResultSet{}, fmt.Errorf("%w: open %q", ErrMalformedDraw, open)
	}

	return model.ResultSet{
		OpenNumber:      open,
		OpenSingleDigit: singleDigit(open),
		OpenPanna:       open,
	}, nil
}
