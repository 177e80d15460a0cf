// Package answer normalizes answer tokens, difficulty levels and question types
// into the canonical forms stored by the application.
//
// A canonical answer token is uppercase letters separated by commas, without
// whitespace, sorted and de-duplicated: "A", "A,C". Two selections with the
// same members therefore always compare equal as strings.
package answer

import (
	"slices"
	"strings"
	"unicode"

	"github.com/pavelanni/exampractice/internal/model"
)

// Normalize uppercases s, turns semicolons into commas and strips all whitespace.
func Normalize(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ";", ",")
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Canonical normalizes s and sorts its comma-separated parts, dropping empty
// and repeated ones. Canonical(Canonical(s)) == Canonical(s).
func Canonical(s string) string {
	return strings.Join(Split(s), ",")
}

// Split returns the sorted, distinct parts of a normalized token.
func Split(s string) []string {
	var parts []string
	for _, p := range strings.Split(Normalize(s), ",") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	slices.Sort(parts)
	return slices.Compact(parts)
}

// Toggle adds letter to the selection if absent, removes it otherwise, and
// returns the re-sorted canonical token.
func Toggle(current, letter string) string {
	letter = Normalize(letter)
	parts := Split(current)
	if i := slices.Index(parts, letter); i >= 0 {
		parts = slices.Delete(parts, i, i+1)
	} else if letter != "" {
		parts = append(parts, letter)
	}
	return Canonical(strings.Join(parts, ","))
}

// Contains reports whether the token selects letter.
func Contains(token, letter string) bool {
	return slices.Contains(Split(token), Normalize(letter))
}

// Matches reports whether a selected answer is correct: it must be non-empty
// and string-equal to the correct answer after canonicalization.
func Matches(selected, correct string) bool {
	sel := Canonical(selected)
	return sel != "" && sel == Canonical(correct)
}

var difficultySynonyms = map[string]model.Difficulty{
	"easy":       model.DifficultyEasy,
	"medium":     model.DifficultyMedium,
	"hard":       model.DifficultyHard,
	"dễ":         model.DifficultyEasy,
	"de":         model.DifficultyEasy,
	"vừa":        model.DifficultyMedium,
	"vua":        model.DifficultyMedium,
	"trungbinh":  model.DifficultyMedium,
	"trung_binh": model.DifficultyMedium,
	"tb":         model.DifficultyMedium,
	"khó":        model.DifficultyHard,
	"kho":        model.DifficultyHard,
}

// Difficulty maps free-form input onto easy, medium or hard. Unknown input is medium.
func Difficulty(s string) model.Difficulty {
	if d, ok := difficultySynonyms[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d
	}
	return model.DifficultyMedium
}

var qtypeSynonyms = map[string]model.QuestionType{
	"single":        model.QTypeSingle,
	"multi":         model.QTypeMulti,
	"truefalse":     model.QTypeTrueFalse,
	"one":           model.QTypeSingle,
	"singlechoice":  model.QTypeSingle,
	"single_choice": model.QTypeSingle,
	"multiple":      model.QTypeMulti,
	"multichoice":   model.QTypeMulti,
	"multi_choice":  model.QTypeMulti,
	"true_false":    model.QTypeTrueFalse,
	"tf":            model.QTypeTrueFalse,
}

// QuestionType maps free-form input onto single, multi or truefalse. Unknown input is single.
func QuestionType(s string) model.QuestionType {
	if t, ok := qtypeSynonyms[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return model.QTypeSingle
}

// Letters returns the option letters present on q, in order.
func Letters(q model.Question) []string {
	opts := q.Options()
	letters := make([]string, len(opts))
	for i, o := range opts {
		letters[i] = o.Key
	}
	return letters
}
