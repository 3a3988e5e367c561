package game

import (
	"errors"
	"testing"

	"github.com/damru/matka-engine/internal/model"
	"github.com/damru/matka-engine/internal/result"
)

// set123456 is the worked example from the rule definitions:
// open=123 → digit 6, close=456 → digit 5, jodi "65".
func set123456(t *testing.T) model.ResultSet {
	t.Helper()
	set, err := result.Derive("123", "456")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	return set
}

func bet(gt model.GameType, leg model.Leg, number string) *model.Bet {
	return &model.Bet{GameType: gt, Leg: leg, Number: number}
}

func mustEvaluate(t *testing.T, b *model.Bet, set model.ResultSet) bool {
	t.Helper()
	win, err := Evaluate(b, set)
	if err != nil {
		t.Fatalf("Evaluate(%s %s %q): %v", b.GameType, b.Leg, b.Number, err)
	}
	return win
}

func TestSingleDigit(t *testing.T) {
	set := set123456(t)

	if !mustEvaluate(t, bet(model.GameSingleDigit, model.LegOpen, "6"), set) {
		t.Error("open digit 6 should win")
	}
	if mustEvaluate(t, bet(model.GameSingleDigit, model.LegOpen, "5"), set) {
		t.Error("open digit 5 should lose")
	}
	if !mustEvaluate(t, bet(model.GameSingleDigit, model.LegClose, "5"), set) {
		t.Error("close digit 5 should win")
	}
	// Non-numeric numbers never win but are not malformed for this type.
	if mustEvaluate(t, bet(model.GameSingleDigit, model.LegOpen, "x"), set) {
		t.Error("non-numeric single digit bet should lose")
	}
}

func TestJodi_IgnoresLeg(t *testing.T) {
	set := set123456(t)

	for _, leg := range []model.Leg{model.LegOpen, model.LegClose} {
		if !mustEvaluate(t, bet(model.GameJodi, leg, "65"), set) {
			t.Errorf("jodi 65 should win regardless of leg %s", leg)
		}
	}
	if mustEvaluate(t, bet(model.GameJodi, model.LegOpen, "56"), set) {
		t.Error("jodi 56 should lose")
	}
}

func TestSinglePanna(t *testing.T) {
	set := set123456(t)

	if !mustEvaluate(t, bet(model.GameSinglePanna, model.LegOpen, "123"), set) {
		t.Error("open panna 123 should win")
	}
	if !mustEvaluate(t, bet(model.GameSinglePanna, model.LegClose, "456"), set) {
		t.Error("close panna 456 should win")
	}
	if mustEvaluate(t, bet(model.GameSinglePanna, model.LegOpen, "456"), set) {
		t.Error("close panna on open leg should lose")
	}
}

func TestDoublePanna_RequiresDoubleClass(t *testing.T) {
	double, err := result.Derive("122", "456")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	if !mustEvaluate(t, bet(model.GameDoublePanna, model.LegOpen, "122"), double) {
		t.Error("122 on open panna 122 should win (double)")
	}

	// Equality alone is not enough: 123 is a single panna.
	single := set123456(t)
	if mustEvaluate(t, bet(model.GameDoublePanna, model.LegOpen, "123"), single) {
		t.Error("123 matches the open panna but is not a double")
	}
}

func TestTriplePanna_RequiresTripleClass(t *testing.T) {
	triple, err := result.Derive("111", "456")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	if !mustEvaluate(t, bet(model.GameTriplePanna, model.LegOpen, "111"), triple) {
		t.Error("111 on open panna 111 should win (triple)")
	}

	double, _ := result.Derive("122", "456")
	if mustEvaluate(t, bet(model.GameTriplePanna, model.LegOpen, "122"), double) {
		t.Error("122 matches but is a double, not a triple")
	}
}

func TestHalfSangam_OpenSideRule(t *testing.T) {
	// openPanna=123, closeSingleDigit=5: "123-5" wins via the open-side
	// rule even though it fails the close-side rule.
	set := set123456(t)

	if !mustEvaluate(t, bet(model.GameHalfSangam, model.LegOpen, "123-5"), set) {
		t.Error("123-5 should win via open panna + close digit")
	}
	// Digit-first order is accepted too.
	if !mustEvaluate(t, bet(model.GameHalfSangam, model.LegOpen, "5-123"), set) {
		t.Error("5-123 should win with segments reversed")
	}
	// Close-side combination: closePanna=456 + openSingleDigit=6.
	if !mustEvaluate(t, bet(model.GameHalfSangam, model.LegClose, "456-6"), set) {
		t.Error("456-6 should win via close panna + open digit")
	}
	if mustEvaluate(t, bet(model.GameHalfSangam, model.LegOpen, "123-6"), set) {
		t.Error("123-6 pairs the open panna with the wrong digit")
	}
}

func TestHalfSangam_MalformedNumbers(t *testing.T) {
	set := set123456(t)

	for _, number := range []string{"12-345", "12345", "123-45", "1-2-3", "-123", "123-"} {
		win, err := Evaluate(bet(model.GameHalfSangam, model.LegOpen, number), set)
		if !errors.Is(err, ErrMalformedWagerNumber) {
			t.Errorf("Evaluate(%q): expected ErrMalformedWagerNumber, got %v", number, err)
		}
		if win {
			t.Errorf("malformed number %q must never win", number)
		}
	}
}

func TestFullSangam(t *testing.T) {
	set := set123456(t)

	if !mustEvaluate(t, bet(model.GameFullSangam, model.LegOpen, "123-456"), set) {
		t.Error("123-456 should win")
	}
	if mustEvaluate(t, bet(model.GameFullSangam, model.LegOpen, "456-123"), set) {
		t.Error("order matters for full sangam")
	}
}

func TestEvaluate_UnknownGameType(t *testing.T) {
	set := set123456(t)

	win, err := Evaluate(bet(model.GameType("Roulette"), model.LegOpen, "6"), set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if win {
		t.Error("unknown game types never win")
	}
}
