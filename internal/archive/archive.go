// Package archive keeps a record of every finished game. Rooms themselves are
// never restored from it.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/kiliankoe/kelime/internal/game"
)

// Record is the summary written for one finished game.
type Record struct {
	Code       string    `json:"code"`
	Mode       string    `json:"mode"`
	Words      []string  `json:"words"`
	WinnerID   string    `json:"winnerId,omitempty"`
	WinnerName string    `json:"winnerName,omitempty"`
	Guesses    int       `json:"guesses"`
	Players    []string  `json:"players"`
	CreatedAt  time.Time `json:"createdAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func FromRoom(r *game.Room) Record {
	rec := Record{
		Code:      r.Code,
		Mode:      string(r.Mode),
		Guesses:   len(r.GameHistory),
		WinnerID:  r.WinnerID,
		CreatedAt: r.CreatedAt,
	}
	if r.FinishedAt != nil {
		rec.FinishedAt = *r.FinishedAt
	} else {
		rec.FinishedAt = r.UpdatedAt
	}
	if r.Mode == game.ModeDuel && r.Player1Word != r.Player2Word {
		rec.Words = []string{r.Player1Word, r.Player2Word}
	} else {
		rec.Words = []string{r.Word}
	}
	for _, p := range r.Players {
		rec.Players = append(rec.Players, p.Name)
		if p.ID == r.WinnerID {
			rec.WinnerName = p.Name
		}
	}
	return rec
}

// Archive is a game.Archiver that owns a resource.
type Archive interface {
	game.Archiver
	Close() error
}

// Lister is implemented by archives that can be queried.
type Lister interface {
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// Open returns the archive for driver, or nil for "none".
func Open(driver, path string) (Archive, error) {
	switch driver {
	case "", "none":
		return nil, nil
	case "file":
		f, err := NewFile(path)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "sqlite":
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown archive driver %q", driver)
}
