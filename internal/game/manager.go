package game

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	CodeLength      = 6
	codeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxCodeAttempts = 32
	archiveTimeout  = 5 * time.Second
)

// Repository stores rooms by code. Update must apply fn atomically: when fn
// returns an error nothing it did may become visible.
type Repository interface {
	Insert(ctx context.Context, room *Room) error
	Get(ctx context.Context, code string) (*Room, error)
	Update(ctx context.Context, code string, fn func(*Room) error) (*Room, error)
	Delete(ctx context.Context, code string) error
	List(ctx context.Context) ([]*Room, error)
}

// Publisher receives every committed room snapshot, in commit order per room.
type Publisher interface {
	Publish(room *Room)
}

// Liveness reports whether a player of room code holds a live connection.
// Stored presence cannot answer that alone: REST callers join without ever
// connecting.
type Liveness interface {
	Connected(code, playerID string) bool
}

// Archiver records finished games.
type Archiver interface {
	Archive(ctx context.Context, room *Room) error
}

type Option func(*RoomManager)

func WithLogger(l zerolog.Logger) Option {
	return func(rm *RoomManager) { rm.log = l }
}

func WithRules(r Rules) Option {
	return func(rm *RoomManager) { rm.rules = r }
}

func WithClock(now func() time.Time) Option {
	return func(rm *RoomManager) { rm.now = now }
}

func WithArchiver(a Archiver) Option {
	return func(rm *RoomManager) { rm.archiver = a }
}

// RoomManager runs every room operation through a per-room pipeline: lock the
// code, apply the transition on the repository, publish the snapshot, unlock.
// Different rooms never wait on each other.
type RoomManager struct {
	repo     Repository
	dict     Dictionary
	rules    Rules
	now      func() time.Time
	log      zerolog.Logger
	archiver Archiver

	mu        sync.Mutex
	locks     map[string]*roomLock
	publisher Publisher
	liveness  Liveness
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func NewRoomManager(repo Repository, dict Dictionary, opts ...Option) *RoomManager {
	rm := &RoomManager{
		repo:  repo,
		dict:  dict,
		now:   func() time.Time { return time.Now().UTC() },
		log:   zerolog.Nop(),
		locks: make(map[string]*roomLock),
	}
	for _, o := range opts {
		o(rm)
	}
	return rm
}

func (rm *RoomManager) SetPublisher(p Publisher) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.publisher = p
}

// SetLiveness lets the janitor ask the transport layer who is connected.
func (rm *RoomManager) SetLiveness(l Liveness) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.liveness = l
}

// lock serializes all work on one room code and returns the matching unlock.
func (rm *RoomManager) lock(code string) func() {
	rm.mu.Lock()
	l := rm.locks[code]
	if l == nil {
		l = &roomLock{}
		rm.locks[code] = l
	}
	l.refs++
	rm.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		rm.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(rm.locks, code)
		}
		rm.mu.Unlock()
	}
}

func (rm *RoomManager) publish(room *Room) {
	rm.mu.Lock()
	p := rm.publisher
	rm.mu.Unlock()
	if p != nil {
		p.Publish(room)
	}
}

type CreateParams struct {
	// Code is optional; a free code is generated when empty.
	Code string
	Mode Mode
	Host Player
}

func (rm *RoomManager) CreateRoom(ctx context.Context, params CreateParams) (*Room, error) {
	if params.Host.ID == "" {
		params.Host.ID = uuid.NewString()
	}
	if params.Code != "" {
		code := NormalizeCode(params.Code)
		if !ValidCode(code) {
			return nil, ErrInvalidCode
		}
		return rm.insert(ctx, code, params)
	}
	for i := 0; i < maxCodeAttempts; i++ {
		room, err := rm.insert(ctx, randomCode(CodeLength), params)
		if errors.Is(err, ErrRoomExists) {
			continue
		}
		return room, err
	}
	return nil, ErrCodeSpaceFull
}

func (rm *RoomManager) insert(ctx context.Context, code string, params CreateParams) (*Room, error) {
	unlock := rm.lock(code)
	defer unlock()

	room, err := NewRoom(code, params.Mode, params.Host, rm.dict, rm.rules, rm.now())
	if err != nil {
		return nil, err
	}
	room.Version = 1
	if err := rm.repo.Insert(ctx, room); err != nil {
		return nil, err
	}
	rm.log.Info().Str("code", code).Str("mode", string(room.Mode)).Str("host", room.HostPlayerID).Msg("room created")
	snapshot := room.Clone()
	rm.publish(snapshot)
	return snapshot, nil
}

func (rm *RoomManager) Get(ctx context.Context, code string) (*Room, error) {
	return rm.repo.Get(ctx, NormalizeCode(code))
}

// View runs fn on the current snapshot while holding the room's pipeline, so
// no mutation is published between the read and whatever fn sends.
func (rm *RoomManager) View(ctx context.Context, code string, fn func(*Room) error) error {
	code = NormalizeCode(code)
	unlock := rm.lock(code)
	defer unlock()
	room, err := rm.repo.Get(ctx, code)
	if err != nil {
		return err
	}
	return fn(room)
}

func (rm *RoomManager) JoinRoom(ctx context.Context, code string, p Player) (*Room, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return rm.mutate(ctx, code, "join", func(r *Room, now time.Time) error {
		return r.Join(p, now)
	})
}

func (rm *RoomManager) SubmitGuess(ctx context.Context, code, playerID, guess string) (*Room, error) {
	return rm.mutate(ctx, code, "guess", func(r *Room, now time.Time) error {
		_, err := r.ApplyGuess(playerID, guess, rm.dict, now)
		return err
	})
}

// RequestRestart toggles the player's vote and reports whether it completed
// consensus and restarted the game.
func (rm *RoomManager) RequestRestart(ctx context.Context, code, playerID string) (*Room, bool, error) {
	var restarted bool
	room, err := rm.mutate(ctx, code, "restart_request", func(r *Room, now time.Time) error {
		var err error
		restarted, err = r.RequestRestart(playerID, rm.dict, rm.rules, now)
		return err
	})
	return room, restarted, err
}

func (rm *RoomManager) Restart(ctx context.Context, code string) (*Room, error) {
	return rm.mutate(ctx, code, "restart", func(r *Room, now time.Time) error {
		if r.Status == StatusWaiting {
			return ErrGameNotPlaying
		}
		r.Restart(rm.dict, rm.rules, now)
		return nil
	})
}

func (rm *RoomManager) SetPresence(ctx context.Context, code, playerID string, presence Presence) (*Room, error) {
	return rm.mutate(ctx, code, "presence", func(r *Room, now time.Time) error {
		return r.SetPresence(playerID, presence, now)
	})
}

func (rm *RoomManager) mutate(ctx context.Context, code, op string, fn func(*Room, time.Time) error) (*Room, error) {
	code = NormalizeCode(code)
	unlock := rm.lock(code)
	defer unlock()

	now := rm.now()
	var before Status
	var failed *Room
	room, err := rm.repo.Update(ctx, code, func(r *Room) error {
		before = r.Status
		if err := fn(r, now); err != nil {
			failed = r
			return err
		}
		r.Version++
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		rm.logFailure(code, op, failed, err)
		return nil, err
	}

	rm.log.Debug().Str("code", code).Str("op", op).Int64("version", room.Version).Str("status", string(room.Status)).Msg("room updated")
	rm.publish(room)
	if before != StatusFinished && room.Status == StatusFinished {
		rm.archive(room)
	}
	return room, nil
}

func (rm *RoomManager) logFailure(code, op string, r *Room, err error) {
	switch {
	case errors.Is(err, ErrInvariant):
		ev := rm.log.Error().Err(err).Str("code", code).Str("op", op)
		if r != nil {
			ids := make([]string, 0, len(r.Players))
			for _, p := range r.Players {
				ids = append(ids, p.ID)
			}
			ev = ev.Str("status", string(r.Status)).Strs("players", ids).
				Int("currentTurn", r.CurrentTurn).Int("history", len(r.GameHistory)).Int64("version", r.Version)
		}
		ev.Msg("rejected operation on inconsistent room")
	case IsDomainError(err):
		rm.log.Debug().Err(err).Str("code", code).Str("op", op).Msg("operation refused")
	default:
		rm.log.Warn().Err(err).Str("code", code).Str("op", op).Msg("operation failed")
	}
}

func (rm *RoomManager) archive(room *Room) {
	if rm.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := rm.archiver.Archive(ctx, room); err != nil {
			rm.log.Error().Err(err).Str("code", room.Code).Msg("failed to archive finished game")
			return
		}
		rm.log.Info().Str("code", room.Code).Str("winner", room.WinnerID).Msg("archived finished game")
	}()
}

func (rm *RoomManager) Count(ctx context.Context) (int, error) {
	rooms, err := rm.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(rooms), nil
}

// Sweep deletes rooms nobody is connected to that have not changed for ttl.
// With a Liveness set, only live connections keep a room; without one, a
// player counts while marked online and seen within ttl.
func (rm *RoomManager) Sweep(ctx context.Context, ttl time.Duration) ([]string, error) {
	rooms, err := rm.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	var evicted []string
	for _, r := range rooms {
		if !rm.expired(r, ttl) {
			continue
		}
		ok, err := rm.evict(ctx, r.Code, ttl)
		if err != nil {
			return evicted, err
		}
		if ok {
			evicted = append(evicted, r.Code)
		}
	}
	return evicted, nil
}

func (rm *RoomManager) expired(r *Room, ttl time.Duration) bool {
	now := rm.now()
	if now.Sub(r.UpdatedAt) < ttl {
		return false
	}
	rm.mu.Lock()
	live := rm.liveness
	rm.mu.Unlock()
	for _, p := range r.Players {
		if live != nil {
			if live.Connected(r.Code, p.ID) {
				return false
			}
			continue
		}
		if p.Status == PresenceOnline && now.Sub(p.LastSeen) < ttl {
			return false
		}
	}
	return true
}

func (rm *RoomManager) evict(ctx context.Context, code string, ttl time.Duration) (bool, error) {
	unlock := rm.lock(code)
	defer unlock()
	// re-check under the pipeline: a player may have reconnected meanwhile
	r, err := rm.repo.Get(ctx, code)
	if errors.Is(err, ErrRoomNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !rm.expired(r, ttl) {
		return false, nil
	}
	if err := rm.repo.Delete(ctx, code); err != nil && !errors.Is(err, ErrRoomNotFound) {
		return false, err
	}
	rm.log.Info().Str("code", code).Time("updatedAt", r.UpdatedAt).Msg("evicted idle room")
	return true, nil
}

// RunJanitor sweeps every interval until ctx is done.
func (rm *RoomManager) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := rm.Sweep(ctx, ttl); err != nil {
				rm.log.Warn().Err(err).Msg("room sweep failed")
			}
		}
	}
}

// NormalizeCode makes room codes case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code (already normalized) is six letters or digits.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, c := range code {
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func randomCode(n int) string {
	letters := []rune(codeAlphabet)
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
