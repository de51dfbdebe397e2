package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kiliankoe/kelime/internal/game"
)

const stampFormat = "2006-01-02 15:04:05"

// File appends a human readable block per finished game to a text file.
type File struct {
	mu   sync.Mutex
	path string
}

func NewFile(path string) (*File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("archive path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &File{path: path}, nil
}

func (f *File) Archive(ctx context.Context, room *game.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := FromRoom(room)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Kelime - Room %s (%s)\n", rec.Code, rec.Mode))
	sb.WriteString(fmt.Sprintf("Started: %s\n", rec.CreatedAt.Format(stampFormat)))
	sb.WriteString(strings.Repeat("=", 50) + "\n")
	sb.WriteString(fmt.Sprintf("Players: %s\n", strings.Join(rec.Players, ", ")))
	sb.WriteString(fmt.Sprintf("Word(s): %s\n", strings.Join(rec.Words, ", ")))
	sb.WriteString(strings.Repeat("-", 40) + "\n")
	for _, e := range room.GameHistory {
		sb.WriteString(fmt.Sprintf("%d. %s: %s %s\n", e.RowIndex+1, e.PlayerName, e.Guess, pattern(e.Result)))
	}
	sb.WriteString("\n")
	if rec.WinnerName != "" {
		sb.WriteString(fmt.Sprintf("Winner: %s after %d guess(es)\n", rec.WinnerName, rec.Guesses))
	} else {
		sb.WriteString(fmt.Sprintf("Draw after %d guess(es)\n", rec.Guesses))
	}
	sb.WriteString(fmt.Sprintf("Game ended at %s\n", rec.FinishedAt.Format(stampFormat)))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

func (f *File) Close() error { return nil }

// pattern renders a result as G/Y/- squares, one per letter.
func pattern(result []game.LetterStatus) string {
	b := make([]byte, len(result))
	for i, s := range result {
		switch s {
		case game.LetterCorrect:
			b[i] = 'G'
		case game.LetterPresent:
			b[i] = 'Y'
		default:
			b[i] = '-'
		}
	}
	return string(b)
}
