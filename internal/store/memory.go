// Package store holds game.Repository implementations.
//
// Memory is the only backend: rooms live for the lifetime of the process.
// It hands out clones and applies updates copy-on-write, so a failed
// transition never leaves a half-applied room behind.
package store

import (
	"context"
	"sync"

	"github.com/kiliankoe/kelime/internal/game"
)

type Memory struct {
	mu    sync.RWMutex
	rooms map[string]*game.Room
}

var _ game.Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]*game.Room)}
}

func (m *Memory) Insert(ctx context.Context, room *game.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.Code]; ok {
		return game.ErrRoomExists
	}
	m.rooms[room.Code] = room.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, code string) (*game.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[code]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	return r.Clone(), nil
}

// Update runs fn on a private copy and swaps it in only when fn succeeds and
// nobody replaced the room in the meantime; otherwise fn is run again on the
// newer version. fn runs without the map lock held so rooms do not wait on
// each other.
func (m *Memory) Update(ctx context.Context, code string, fn func(*game.Room) error) (*game.Room, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.mu.RLock()
		cur, ok := m.rooms[code]
		m.mu.RUnlock()
		if !ok {
			return nil, game.ErrRoomNotFound
		}

		next := cur.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}

		m.mu.Lock()
		if m.rooms[code] == cur {
			m.rooms[code] = next
			m.mu.Unlock()
			return next.Clone(), nil
		}
		m.mu.Unlock()
	}
}

func (m *Memory) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[code]; !ok {
		return game.ErrRoomNotFound
	}
	delete(m.rooms, code)
	return nil
}

func (m *Memory) List(ctx context.Context) ([]*game.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*game.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.Clone())
	}
	return out, nil
}
