// Package game evaluates bets against a derived result set. Each game
// type is a distinct rule variant implementing the same match contract,
// so the rule set is closed and checkable at compile time instead of
// branching on a raw string.
//
// Evaluation has no side effects: one bet plus one result set in, a
// win/lose decision out.
package game

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/damru/matka-engine/internal/model"
	"github.com/damru/matka-engine/internal/result"
)

// ErrMalformedWagerNumber is returned when a bet's number cannot be
// evaluated under its game type (today only Half Sangam has a compound
// format that can be malformed). This is deliberately distinct from a
// plain loss so callers can report it instead of swallowing it.
var ErrMalformedWagerNumber = errors.New("game: malformed wager number")

// Rule decides whether one bet wins against one result set.
type Rule interface {
	Matches(bet *model.Bet, set model.ResultSet) (bool, error)
}

// rules maps every enumerated game type to its rule variant.
var rules = map[model.GameType]Rule{
	model.GameSingleDigit: singleDigitRule{},
	model.GameJodi:        jodiRule{},
	model.GameSinglePanna: singlePannaRule{},
	model.GameDoublePanna: doublePannaRule{},
	model.GameTriplePanna: triplePannaRule{},
	model.GameHalfSangam:  halfSangamRule{},
	model.GameFullSangam:  fullSangamRule{},
}

// Evaluate runs the rule for the bet's game type. Unrecognized game
// types never win.
func Evaluate(bet *model.Bet, set model.ResultSet) (bool, error) {
	rule, ok := rules[bet.GameType]
	if !ok {
		return false, nil
	}
	return rule.Matches(bet, set)
}

// legPanna returns the panna selected by the bet's leg.
func legPanna(leg model.Leg, set model.ResultSet) string {
	if leg == model.LegClose {
		return set.ClosePanna
	}
	return set.OpenPanna
}

// legDigit returns the single digit selected by the bet's leg.
func legDigit(leg model.Leg, set model.ResultSet) int {
	if leg == model.LegClose {
		return set.CloseSingleDigit
	}
	return set.OpenSingleDigit
}

// singleDigitRule: the bet number, as an integer 0-9, equals the single
// digit of the selected leg.
type singleDigitRule struct{}

func (singleDigitRule) Matches(bet *model.Bet, set model.ResultSet) (bool, error) {
	n, err := strconv.Atoi(bet.Number)
	if err != nil {
		return false, nil
	}
	return n == legDigit(bet.Leg, set), nil
}

// jodiRule: the bet number equals the 2-character jodi. Leg is ignored.
type jodiRule struct{}

func (jodiRule) Matches(bet *model.Bet, set model.ResultSet) (bool, error) {
	return bet.Number == set.Jodi, nil
}

// singlePannaRule: the bet number equals the selected panna,
// unconditionally.
type singlePannaRule struct{}

func (singlePannaRule) Matches(bet *model.Bet, set model.ResultSet) (bool, error) {
	return bet.Number == legPanna(bet.Leg, set), nil
}

// doublePannaRule: equality plus the selected panna must classify as a
// double.
type doublePannaRule struct{}

func (doublePannaRule) Matches(bet *model.Bet, set model.ResultSet) (bool, error) {
	panna := legPanna(bet.Leg, set)
	return bet.Number == panna && result.Classify(panna) == result.PannaDouble, nil
}

// triplePannaRule: equality plus the selected panna must classify as a
// triple.
type triplePannaRule struct{}

func (triplePannaRule) Matches(bet *model.Bet, set model.ResultSet) (bool, error) {
	panna := legPanna(bet.Leg, set)
	return bet.Number == panna && result.Classify(panna) == result.PannaTriple, nil
}

// halfSangamRule: the bet number is "panna-digit" (in either order).
// Wins if the panna side matches the open panna and the digit side the
// close single digit, or the mirrored combination. Leg is ignored.
type halfSangamRule struct{}

func (halfSangamRule) Matches(bet *model.Bet, set model.ResultSet) (bool, error) {
	panna, digit, err := splitHalfSangam(bet.Number)
	if err != nil {
		return false, err
	}

	openSide := panna == set.OpenPanna && digit == strconv.Itoa(set.CloseSingleDigit)
	closeSide := panna == set.ClosePanna && digit == strconv.Itoa(set.OpenSingleDigit)
	return openSide || closeSide, nil
}

// splitHalfSangam parses "A-B" where one segment is a 3-digit panna and
// the other a single digit, in either order.
func splitHalfSangam(number string) (panna, digit string, err error) {
	parts := strings.Split(number, "-")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedWagerNumber, number)
	}
	switch {
	case len(parts[0]) == 3 && len(parts[1]) == 1:
		return parts[0], parts[1], nil
	case len(parts[0]) == 1 && len(parts[1]) == 3:
		return parts[1], parts[0], nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrMalformedWagerNumber, number)
	}
}

// fullSangamRule: the bet number equals "<openPanna>-<closePanna>"
// exactly. Leg is ignored.
type fullSangamRule struct{}

func (fullSangamRule) Matches(bet *model.Bet, set model.ResultSet) (bool, error) {
	return bet.Number == set.OpenPanna+"-"+set.ClosePanna, nil
}
