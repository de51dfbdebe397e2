// Package words is the dictionary provider: it owns the five-letter word list,
// picks target words and answers validity checks for guesses.
package words

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Length is the number of letters in every playable word.
const Length = 5

// Alphabet is the 29-letter Turkish alphabet in upper case. Dotless I and
// dotted İ are distinct letters.
const Alphabet = "ABCÇDEFGĞHIİJKLMNOÖPRSŞTUÜVYZ"

//go:embed tr5.txt
var embedded string

//go:embed tr5_allowed.txt
var embeddedAllowed string

var ErrTooFewWords = errors.New("words: list needs at least two playable words")

type List struct {
	answers []string
	allowed map[string]struct{}
}

// Embedded returns the list compiled into the binary: the target words plus a
// larger set of words that are only accepted as guesses.
func Embedded() (*List, error) {
	l, err := New(readLines(embedded))
	if err != nil {
		return nil, err
	}
	l.Allow(readLines(embeddedAllowed))
	return l, nil
}

// FromFile loads target words from path, see ReadFile.
func FromFile(path string) (*List, error) {
	lines, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(lines)
}

// ReadFile returns one word per line of path. Blank lines and lines starting
// with # are skipped.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open word file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read word file: %w", err)
	}
	return lines, nil
}

// New normalizes, filters and deduplicates words.
func New(words []string) (*List, error) {
	l := &List{allowed: make(map[string]struct{}, len(words))}
	for _, w := range words {
		w = Normalize(w)
		if !IsWord(w) {
			continue
		}
		if _, dup := l.allowed[w]; dup {
			continue
		}
		l.allowed[w] = struct{}{}
		l.answers = append(l.answers, w)
	}
	if len(l.answers) < 2 {
		return nil, ErrTooFewWords
	}
	return l, nil
}

func (l *List) SelectRandomWord() string {
	return l.answers[rand.Intn(len(l.answers))]
}

// SelectDifferentWords returns two distinct words.
func (l *List) SelectDifferentWords() (string, string) {
	i := rand.Intn(len(l.answers))
	j := rand.Intn(len(l.answers) - 1)
	if j >= i {
		j++
	}
	return l.answers[i], l.answers[j]
}

func (l *List) IsValidWord(word string) bool {
	_, ok := l.allowed[Normalize(word)]
	return ok
}

// Allow accepts words as guesses without making them targets. Entries that
// are not five Turkish letters are skipped. It returns how many were new.
func (l *List) Allow(words []string) int {
	n := 0
	for _, w := range words {
		w = Normalize(w)
		if !IsWord(w) {
			continue
		}
		if _, dup := l.allowed[w]; dup {
			continue
		}
		l.allowed[w] = struct{}{}
		n++
	}
	return n
}

func (l *List) Len() int { return len(l.answers) }

// AllowedLen is the number of accepted guesses, targets included.
func (l *List) AllowedLen() int { return len(l.allowed) }

// Words returns a copy of the playable words in list order.
func (l *List) Words() []string {
	return append([]string(nil), l.answers...)
}

// Normalize trims s and upper-cases it with Turkish rules, so i becomes İ and
// ı becomes I. A plain strings.ToUpper would fold both to I.
func Normalize(s string) string {
	return cases.Upper(language.Turkish).String(strings.TrimSpace(s))
}

// IsWord reports whether s is exactly Length letters of Alphabet. s must
// already be normalized.
func IsWord(s string) bool {
	if utf8.RuneCountInString(s) != Length {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}

func readLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
