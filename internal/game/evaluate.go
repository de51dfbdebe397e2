package game

import (
	"errors"

	"github.com/kiliankoe/kelime/internal/words"
)

type LetterStatus string

const (
	LetterEmpty   LetterStatus = "empty"
	LetterCorrect LetterStatus = "correct"
	LetterPresent LetterStatus = "present"
	LetterAbsent  LetterStatus = "absent"
)

// rank orders statuses for keyboard aggregation: absent < present < correct.
func (s LetterStatus) rank() int {
	switch s {
	case LetterAbsent:
		return 1
	case LetterPresent:
		return 2
	case LetterCorrect:
		return 3
	}
	return 0
}

var ErrWordLength = errors.New("guess and target must both have five letters")

// Evaluate scores guess against target with the two-pass rule. Letters are
// compared as exact code points after words.Normalize, so I and İ never match.
func Evaluate(guess, target string) ([]LetterStatus, error) {
	g := []rune(words.Normalize(guess))
	t := []rune(words.Normalize(target))
	if len(g) != words.Length || len(t) != words.Length {
		return nil, ErrWordLength
	}

	result := make([]LetterStatus, words.Length)
	remaining := make(map[rune]int, words.Length)

	for i := range g {
		if g[i] == t[i] {
			result[i] = LetterCorrect
		} else {
			remaining[t[i]]++
		}
	}
	for i := range g {
		if result[i] == LetterCorrect {
			continue
		}
		if remaining[g[i]] > 0 {
			result[i] = LetterPresent
			remaining[g[i]]--
		} else {
			result[i] = LetterAbsent
		}
	}
	return result, nil
}

// Solved reports whether every letter of result is correct.
func Solved(result []LetterStatus) bool {
	if len(result) == 0 {
		return false
	}
	for _, s := range result {
		if s != LetterCorrect {
			return false
		}
	}
	return true
}
