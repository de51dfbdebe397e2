package game

import (
	"time"
)

type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeDuel       Mode = "duel"
)

func (m Mode) Valid() bool { return m == ModeSequential || m == ModeDuel }

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

type Presence string

const (
	PresenceOnline       Presence = "online"
	PresenceDisconnected Presence = "disconnected"
)

const (
	MaxPlayers = 2
	// MaxDuelGuesses is the per-player guess allowance in duel mode.
	MaxDuelGuesses = 6
)

type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar"`
	Status   Presence  `json:"status"`
	JoinTime time.Time `json:"joinTime"`
	LastSeen time.Time `json:"lastSeen"`
}

// GuessEntry is one row of a board. It is never modified after it is appended.
type GuessEntry struct {
	RowIndex     int            `json:"rowIndex"`
	PlayerID     string         `json:"playerId"`
	PlayerName   string         `json:"playerName"`
	PlayerAvatar string         `json:"playerAvatar"`
	Guess        string         `json:"guess"`
	Result       []LetterStatus `json:"result"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Room is one game session. Its fields are only changed through the methods
// in room.go; everything else works on clones.
type Room struct {
	Code            string                    `json:"code"`
	Mode            Mode                      `json:"mode"`
	HostPlayerID    string                    `json:"hostPlayerId"`
	Players         []Player                  `json:"players"`
	Status          Status                    `json:"status"`
	Word            string                    `json:"word"`
	Player1Word     string                    `json:"player1Word,omitempty"`
	Player2Word     string                    `json:"player2Word,omitempty"`
	CurrentTurn     int                       `json:"currentTurn"`
	CreatedAt       time.Time                 `json:"createdAt"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
	FinishedAt      *time.Time                `json:"finishedAt,omitempty"`
	GameHistory     []GuessEntry              `json:"gameHistory"`
	TotalRows       int                       `json:"totalRows"`
	RestartRequests []string                  `json:"restartRequests"`
	Keyboards       map[string]KeyboardStatus `json:"keyboards"`
	WinnerID        string                    `json:"winnerId,omitempty"`
	Version         int64                     `json:"version"`
}

// Clone returns a deep copy that shares no mutable state with r.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = append([]Player(nil), r.Players...)
	c.GameHistory = make([]GuessEntry, len(r.GameHistory))
	for i, e := range r.GameHistory {
		e.Result = append([]LetterStatus(nil), e.Result...)
		c.GameHistory[i] = e
	}
	c.RestartRequests = append([]string(nil), r.RestartRequests...)
	c.Keyboards = make(map[string]KeyboardStatus, len(r.Keyboards))
	for id, kb := range r.Keyboards {
		c.Keyboards[id] = kb.Clone()
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

func (r *Room) PlayerIndex(playerID string) int {
	for i, p := range r.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// GuessCount returns how many rows playerID has submitted in the current game.
func (r *Room) GuessCount(playerID string) int {
	n := 0
	for _, e := range r.GameHistory {
		if e.PlayerID == playerID {
			n++
		}
	}
	return n
}

// Idle reports whether nobody is connected to the room.
func (r *Room) Idle() bool {
	for _, p := range r.Players {
		if p.Status == PresenceOnline {
			return false
		}
	}
	return true
}
