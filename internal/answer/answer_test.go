package answer

import (
	"testing"

	"github.com/pavelanni/exampractice/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"c", "C"},
		{"A; C", "A,C"},
		{" a , c ", "A,C"},
		{"\tb\n", "B"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"C,A", "A,C"},
		{"c; a", "A,C"},
		{"A,,C,", "A,C"},
		{"B,B,a", "A,B"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := Canonical(tt.in); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIdempotent(t *testing.T) {
	inputs := []string{"", "a", "A; C", " c , a ", "b;;a", "Đ a", "x y z", ",,,"}
	for _, in := range inputs {
		n := Normalize(in)
		if Normalize(n) != n {
			t.Errorf("Normalize not idempotent for %q", in)
		}
		c := Canonical(in)
		if Canonical(c) != c {
			t.Errorf("Canonical not idempotent for %q", in)
		}
	}
}

func TestToggle(t *testing.T) {
	// A then C, then remove A.
	s := Toggle("", "A")
	s = Toggle(s, "C")
	if s != "A,C" {
		t.Fatalf("after A,C toggles got %q", s)
	}
	s = Toggle(s, "A")
	if s != "C" {
		t.Errorf("after un-toggling A got %q, want C", s)
	}
	if got := Toggle("", "C"); got != s {
		t.Errorf("toggling C alone = %q, want %q", got, s)
	}

	// Selection order does not matter.
	if a, b := Toggle(Toggle("", "D"), "b"), Toggle(Toggle("", "B"), "D"); a != b || a != "B,D" {
		t.Errorf("order dependent toggles: %q vs %q", a, b)
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name              string
		selected, correct string
		want              bool
	}{
		{"single", "b", "B", true},
		{"multi any order", "A,C", "C,A", true},
		{"multi with semicolons", "c; a", "A,C", true},
		{"wrong", "A", "B", false},
		{"subset", "A", "A,C", false},
		{"unanswered", "", "B", false},
		{"unanswered vs empty correct", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.selected, tt.correct); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.selected, tt.correct, got, tt.want)
			}
		})
	}
}

func TestContains(t *testing.T) {
	if !Contains("A,C", "c") {
		t.Error("expected A,C to contain c")
	}
	if Contains("A,C", "B") {
		t.Error("did not expect A,C to contain B")
	}
}

func TestDifficulty(t *testing.T) {
	tests := map[string]model.Difficulty{
		"easy":   model.DifficultyEasy,
		" HARD ": model.DifficultyHard,
		"Dễ":     model.DifficultyEasy,
		"kho":    model.DifficultyHard,
		"tb":     model.DifficultyMedium,
		"":       model.DifficultyMedium,
		"insane": model.DifficultyMedium,
	}
	for in, want := range tests {
		if got := Difficulty(in); got != want {
			t.Errorf("Difficulty(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQuestionType(t *testing.T) {
	tests := map[string]model.QuestionType{
		"single":       model.QTypeSingle,
		"Multiple":     model.QTypeMulti,
		"multi_choice": model.QTypeMulti,
		"truefalse":    model.QTypeTrueFalse,
		"one":          model.QTypeSingle,
		"":             model.QTypeSingle,
		"essay":        model.QTypeSingle,
	}
	for in, want := range tests {
		if got := QuestionType(in); got != want {
			t.Errorf("QuestionType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLetters(t *testing.T) {
	a, c, empty := "Aorta", "Vena cava", ""
	q := model.Question{OptionA: &a, OptionB: &empty, OptionC: &c}
	got := Letters(q)
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Errorf("Letters = %v, want [A C]", got)
	}
	if len(Letters(model.Question{})) != 0 {
		t.Error("expected no letters for a question without options")
	}
}
