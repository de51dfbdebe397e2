package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiliankoe/kelime/internal/game"
	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS game_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	code        TEXT NOT NULL,
	mode        TEXT NOT NULL,
	words       TEXT NOT NULL,
	winner_id   TEXT NOT NULL DEFAULT '',
	winner_name TEXT NOT NULL DEFAULT '',
	guesses     INTEGER NOT NULL,
	players     TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS game_results_finished_at ON game_results (finished_at);
`

// SQLite stores results in a game_results table.
type SQLite struct {
	sqlDB *sql.DB
}

var _ Lister = (*SQLite)(nil)

func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{sqlDB: sqlDB}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLite) Archive(ctx context.Context, room *game.Room) error {
	rec := FromRoom(room)
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return fmt.Errorf("encode players: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO game_results (code, mode, words, winner_id, winner_name, guesses, players, created_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Code, rec.Mode, strings.Join(rec.Words, ","), rec.WinnerID, rec.WinnerName, rec.Guesses,
		string(players), rec.CreatedAt.UTC().Format(timeFormat), rec.FinishedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Recent returns up to limit results, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT code, mode, words, winner_id, winner_name, guesses, players, created_at, finished_at
FROM game_results ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			rec                 Record
			words, players      string
			createdAt, finished string
		)
		if err := rows.Scan(&rec.Code, &rec.Mode, &words, &rec.WinnerID, &rec.WinnerName, &rec.Guesses, &players, &createdAt, &finished); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		rec.Words = strings.Split(words, ",")
		if err := json.Unmarshal([]byte(players), &rec.Players); err != nil {
			return nil, fmt.Errorf("decode players: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if rec.FinishedAt, err = time.Parse(timeFormat, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
