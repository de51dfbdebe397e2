package game

// KeyboardStatus maps a single upper-case letter to the best status seen for it.
type KeyboardStatus map[string]LetterStatus

func (k KeyboardStatus) Clone() KeyboardStatus {
	out := make(KeyboardStatus, len(k))
	for l, s := range k {
		out[l] = s
	}
	return out
}

// Upgrade returns a copy of current with guess/result folded in. A letter only
// moves up the absent < present < correct order, never down.
func Upgrade(current KeyboardStatus, guess string, result []LetterStatus) KeyboardStatus {
	next := current.Clone()
	upgradeInPlace(next, guess, result)
	return next
}

// Aggregate folds a whole history into a fresh keyboard.
func Aggregate(history []GuessEntry) KeyboardStatus {
	kb := KeyboardStatus{}
	for _, e := range history {
		upgradeInPlace(kb, e.Guess, e.Result)
	}
	return kb
}

func upgradeInPlace(kb KeyboardStatus, guess string, result []LetterStatus) {
	i := 0
	for _, r := range guess {
		if i >= len(result) {
			return
		}
		letter := string(r)
		if result[i].rank() > kb[letter].rank() {
			kb[letter] = result[i]
		}
		i++
	}
}
