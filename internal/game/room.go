package game

import (
	"fmt"
	"time"

	"github.com/kiliankoe/kelime/internal/words"
)

// Dictionary is the word source a room draws targets from and validates
// guesses against.
type Dictionary interface {
	SelectRandomWord() string
	SelectDifferentWords() (string, string)
	IsValidWord(word string) bool
}

// Rules carries the process-wide knobs that influence room transitions.
type Rules struct {
	// SameWordDuel gives both duel players one shared target word.
	SameWordDuel bool
}

// NewRoom builds a waiting room with host as its only player.
func NewRoom(code string, mode Mode, host Player, dict Dictionary, rules Rules, now time.Time) (*Room, error) {
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	host.Status = PresenceOnline
	host.JoinTime = now
	host.LastSeen = now
	r := &Room{
		Code:            code,
		Mode:            mode,
		HostPlayerID:    host.ID,
		Players:         []Player{host},
		Status:          StatusWaiting,
		CurrentTurn:     0,
		CreatedAt:       now,
		UpdatedAt:       now,
		GameHistory:     []GuessEntry{},
		TotalRows:       1,
		RestartRequests: []string{},
		Keyboards:       map[string]KeyboardStatus{},
	}
	r.drawWords(dict, rules)
	return r, nil
}

func (r *Room) drawWords(dict Dictionary, rules Rules) {
	r.Player1Word, r.Player2Word = "", ""
	if r.Mode == ModeSequential {
		r.Word = dict.SelectRandomWord()
		return
	}
	if rules.SameWordDuel {
		w := dict.SelectRandomWord()
		r.Word, r.Player1Word, r.Player2Word = w, w, w
		return
	}
	a, b := dict.SelectDifferentWords()
	r.Word, r.Player1Word, r.Player2Word = a, a, b
}

// TargetFor returns the word the player at index idx is guessing.
func (r *Room) TargetFor(idx int) string {
	if r.Mode == ModeDuel {
		switch {
		case idx == 0 && r.Player1Word != "":
			return r.Player1Word
		case idx == 1 && r.Player2Word != "":
			return r.Player2Word
		}
	}
	return r.Word
}

// Join adds p as the second player and starts the game. A player who is
// already seated is just marked online again.
func (r *Room) Join(p Player, now time.Time) error {
	if i := r.PlayerIndex(p.ID); i >= 0 {
		r.Players[i].Status = PresenceOnline
		r.Players[i].LastSeen = now
		return nil
	}
	if len(r.Players) >= MaxPlayers {
		return ErrRoomFull
	}
	if r.Status != StatusWaiting {
		return ErrRoomNotJoinable
	}
	p.Status = PresenceOnline
	p.JoinTime = now
	p.LastSeen = now
	r.Players = append(r.Players, p)
	if len(r.Players) == MaxPlayers {
		r.Status = StatusPlaying
	}
	return nil
}

// ApplyGuess validates and records a guess by playerID and runs the
// termination rules for the room's mode.
func (r *Room) ApplyGuess(playerID, guess string, dict Dictionary, now time.Time) (GuessEntry, error) {
	if r.Status != StatusPlaying {
		return GuessEntry{}, ErrGameNotPlaying
	}
	if len(r.Players) != MaxPlayers {
		return GuessEntry{}, fmt.Errorf("%w: playing with %d players", ErrInvariant, len(r.Players))
	}
	idx := r.PlayerIndex(playerID)
	if idx < 0 {
		return GuessEntry{}, ErrPlayerNotInRoom
	}

	switch r.Mode {
	case ModeSequential:
		if r.CurrentTurn < 0 || r.CurrentTurn >= len(r.Players) {
			return GuessEntry{}, fmt.Errorf("%w: current turn %d out of range", ErrInvariant, r.CurrentTurn)
		}
		if r.Players[r.CurrentTurn].ID != playerID {
			return GuessEntry{}, ErrNotYourTurn
		}
	case ModeDuel:
		if r.GuessCount(playerID) >= MaxDuelGuesses || r.hasSolved(playerID) {
			return GuessEntry{}, ErrPlayerExhausted
		}
	}

	guess = words.Normalize(guess)
	if !words.IsWord(guess) || !dict.IsValidWord(guess) {
		return GuessEntry{}, ErrInvalidWord
	}
	result, err := Evaluate(guess, r.TargetFor(idx))
	if err != nil {
		return GuessEntry{}, fmt.Errorf("%w: target for player %d: %v", ErrInvariant, idx, err)
	}

	row := len(r.GameHistory)
	if r.Mode == ModeDuel {
		row = r.GuessCount(playerID)
	}
	p := r.Players[idx]
	entry := GuessEntry{
		RowIndex:     row,
		PlayerID:     p.ID,
		PlayerName:   p.Name,
		PlayerAvatar: p.Avatar,
		Guess:        guess,
		Result:       result,
		Timestamp:    now,
	}
	r.GameHistory = append(r.GameHistory, entry)
	r.Players[idx].LastSeen = now
	r.upgradeKeyboards(entry)

	switch {
	case Solved(result):
		r.finish(playerID, now)
	case r.Mode == ModeDuel:
		if r.GuessCount(r.Players[0].ID) >= MaxDuelGuesses && r.GuessCount(r.Players[1].ID) >= MaxDuelGuesses {
			r.finish("", now)
		}
	default:
		r.CurrentTurn = (r.CurrentTurn + 1) % len(r.Players)
		r.TotalRows++
	}
	return entry, nil
}

func (r *Room) hasSolved(playerID string) bool {
	for _, e := range r.GameHistory {
		if e.PlayerID == playerID && Solved(e.Result) {
			return true
		}
	}
	return false
}

// upgradeKeyboards folds entry into the keyboards it affects: everyone's in
// sequential mode (one shared board), only the guesser's in duel mode.
func (r *Room) upgradeKeyboards(entry GuessEntry) {
	if r.Keyboards == nil {
		r.Keyboards = map[string]KeyboardStatus{}
	}
	if r.Mode == ModeDuel {
		r.Keyboards[entry.PlayerID] = Upgrade(r.Keyboards[entry.PlayerID], entry.Guess, entry.Result)
		return
	}
	for _, p := range r.Players {
		r.Keyboards[p.ID] = Upgrade(r.Keyboards[p.ID], entry.Guess, entry.Result)
	}
}

func (r *Room) finish(winnerID string, now time.Time) {
	r.Status = StatusFinished
	r.WinnerID = winnerID
	t := now
	r.FinishedAt = &t
}

// RequestRestart toggles playerID's restart vote. When every other player has
// already voted, the vote completes consensus and the room restarts; the
// returned bool reports that.
func (r *Room) RequestRestart(playerID string, dict Dictionary, rules Rules, now time.Time) (bool, error) {
	if r.PlayerIndex(playerID) < 0 {
		return false, ErrPlayerNotInRoom
	}
	if r.Status == StatusWaiting {
		return false, ErrGameNotPlaying
	}
	for i, id := range r.RestartRequests {
		if id == playerID {
			r.RestartRequests = append(r.RestartRequests[:i:i], r.RestartRequests[i+1:]...)
			return false, nil
		}
	}
	if len(r.RestartRequests) == len(r.Players)-1 {
		r.Restart(dict, rules, now)
		return true, nil
	}
	r.RestartRequests = append(r.RestartRequests, playerID)
	return false, nil
}

// Restart starts a fresh game with new words for the same players.
func (r *Room) Restart(dict Dictionary, rules Rules, now time.Time) {
	r.drawWords(dict, rules)
	r.GameHistory = []GuessEntry{}
	r.RestartRequests = []string{}
	r.Keyboards = map[string]KeyboardStatus{}
	r.CurrentTurn = 0
	r.TotalRows = 1
	r.WinnerID = ""
	r.FinishedAt = nil
	r.Status = StatusPlaying
	r.UpdatedAt = now
}

// SetPresence records a connect or disconnect for playerID.
func (r *Room) SetPresence(playerID string, presence Presence, now time.Time) error {
	idx := r.PlayerIndex(playerID)
	if idx < 0 {
		return ErrPlayerNotInRoom
	}
	r.Players[idx].Status = presence
	r.Players[idx].LastSeen = now
	return nil
}
