package game_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kiliankoe/kelime/internal/game"
	"github.com/kiliankoe/kelime/internal/store"
	"github.com/kiliankoe/kelime/internal/words"
)

type recorder struct {
	mu    sync.Mutex
	rooms []*game.Room
}

func (r *recorder) Publish(room *game.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, room)
}

func (r *recorder) versions(code string) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for _, room := range r.rooms {
		if room.Code == code {
			out = append(out, room.Version)
		}
	}
	return out
}

type archiveFunc func(ctx context.Context, room *game.Room) error

func (f archiveFunc) Archive(ctx context.Context, room *game.Room) error { return f(ctx, room) }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newManager(t *testing.T, opts ...game.Option) (*game.RoomManager, *recorder) {
	t.Helper()
	dict, err := words.New([]string{"ELMAS", "KALEM", "KİTAP", "MASAL", "SALON"})
	if err != nil {
		t.Fatalf("word list: %v", err)
	}
	rm := game.NewRoomManager(store.NewMemory(), dict, opts...)
	rec := &recorder{}
	rm.SetPublisher(rec)
	return rm, rec
}

// otherWord returns a playable word that does not solve target.
func otherWord(target string) string {
	if target == "KİTAP" {
		return "SALON"
	}
	return "KİTAP"
}

func createPlaying(t *testing.T, rm *game.RoomManager, mode game.Mode) *game.Room {
	t.Helper()
	ctx := context.Background()
	room, err := rm.CreateRoom(ctx, game.CreateParams{Mode: mode, Host: game.Player{ID: "p1", Name: "Ayşe"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	room, err = rm.JoinRoom(ctx, room.Code, game.Player{ID: "p2", Name: "Mehmet"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return room
}

func TestCreateRoom(t *testing.T) {
	rm, rec := newManager(t)
	ctx := context.Background()

	room, err := rm.CreateRoom(ctx, game.CreateParams{Mode: game.ModeSequential, Host: game.Player{Name: "Ayşe"}})
	if err != nil {
		t.Fatalf("should be able to create room: %v", err)
	}
	if !game.ValidCode(room.Code) {
		t.Fatalf("expected a six character code, got %q", room.Code)
	}
	if room.HostPlayerID == "" || room.Players[0].ID != room.HostPlayerID {
		t.Fatal("host should get a generated id")
	}
	if room.Version != 1 {
		t.Fatalf("expected version 1, got %d", room.Version)
	}
	if got := rec.versions(room.Code); len(got) != 1 {
		t.Fatalf("expected one published snapshot, got %v", got)
	}

	stored, err := rm.Get(ctx, room.Code)
	if err != nil {
		t.Fatalf("should be able to get room: %v", err)
	}
	if stored.Status != game.StatusWaiting {
		t.Fatalf("expected waiting, got %s", stored.Status)
	}
	if n, _ := rm.Count(ctx); n != 1 {
		t.Fatalf("expected 1 room, got %d", n)
	}
}

func TestCreateRoomWithChosenCode(t *testing.T) {
	rm, _ := newManager(t)
	ctx := context.Background()
	params := game.CreateParams{Code: " abc123 ", Mode: game.ModeDuel, Host: game.Player{ID: "p1"}}

	room, err := rm.CreateRoom(ctx, params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if room.Code != "ABC123" {
		t.Fatalf("expected normalized code ABC123, got %s", room.Code)
	}
	if room.Player1Word == room.Player2Word {
		t.Fatalf("duel players should get different words, both got %s", room.Player1Word)
	}
	if _, err := rm.CreateRoom(ctx, params); !errors.Is(err, game.ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}
	if _, err := rm.Get(ctx, "abc123"); err != nil {
		t.Fatalf("lookups should ignore case: %v", err)
	}

	for _, code := range []string{"ABC", "ABC-12", "ABCDEFG"} {
		params.Code = code
		if _, err := rm.CreateRoom(ctx, params); !errors.Is(err, game.ErrInvalidCode) {
			t.Fatalf("expected ErrInvalidCode for %q, got %v", code, err)
		}
	}
	params.Code = ""
	params.Mode = "battle"
	if _, err := rm.CreateRoom(ctx, params); !errors.Is(err, game.ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestSameWordDuelRule(t *testing.T) {
	rm, _ := newManager(t, game.WithRules(game.Rules{SameWordDuel: true}))
	room := createPlaying(t, rm, game.ModeDuel)
	if room.Player1Word != room.Player2Word {
		t.Fatalf("expected a shared word, got %s and %s", room.Player1Word, room.Player2Word)
	}
}

func TestOperationsPublishInOrder(t *testing.T) {
	rm, rec := newManager(t)
	ctx := context.Background()
	room := createPlaying(t, rm, game.ModeSequential)

	if _, err := rm.SubmitGuess(ctx, room.Code, "p1", otherWord(room.Word)); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if _, err := rm.SubmitGuess(ctx, room.Code, "p1", otherWord(room.Word)); !errors.Is(err, game.ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	after, err := rm.SetPresence(ctx, room.Code, "p2", game.PresenceDisconnected)
	if err != nil {
		t.Fatalf("presence: %v", err)
	}

	got := rec.versions(room.Code)
	want := []int64{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("expected versions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected versions %v, got %v", want, got)
		}
	}
	if after.Version != 4 || after.Players[1].Status != game.PresenceDisconnected {
		t.Fatalf("unexpected room after presence change: %+v", after)
	}
}

func TestMissingRoom(t *testing.T) {
	rm, rec := newManager(t)
	ctx := context.Background()
	if _, err := rm.JoinRoom(ctx, "NOPE00", game.Player{Name: "x"}); !errors.Is(err, game.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if _, err := rm.SubmitGuess(ctx, "NOPE00", "p1", "ELMAS"); !errors.Is(err, game.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if err := rm.View(ctx, "NOPE00", func(*game.Room) error { return nil }); !errors.Is(err, game.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if len(rec.rooms) != 0 {
		t.Fatal("failures must not publish")
	}
}

func TestConcurrentDuelGuessesAreSerialized(t *testing.T) {
	rm, _ := newManager(t)
	ctx := context.Background()
	room := createPlaying(t, rm, game.ModeDuel)

	var wg sync.WaitGroup
	for _, p := range []struct{ id, target string }{{"p1", room.Player1Word}, {"p2", room.Player2Word}} {
		wg.Add(1)
		go func(id, target string) {
			defer wg.Done()
			for i := 0; i < game.MaxDuelGuesses; i++ {
				if _, err := rm.SubmitGuess(ctx, room.Code, id, otherWord(target)); err != nil {
					t.Errorf("guess by %s: %v", id, err)
					return
				}
			}
		}(p.id, p.target)
	}
	wg.Wait()

	final, err := rm.Get(ctx, room.Code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(final.GameHistory) != 2*game.MaxDuelGuesses {
		t.Fatalf("expected %d rows, got %d", 2*game.MaxDuelGuesses, len(final.GameHistory))
	}
	if final.Status != game.StatusFinished || final.WinnerID != "" {
		t.Fatalf("expected a draw, got %s %q", final.Status, final.WinnerID)
	}
	rows := map[string]int{}
	for _, e := range final.GameHistory {
		if e.RowIndex != rows[e.PlayerID] {
			t.Fatalf("row index %d out of order for %s", e.RowIndex, e.PlayerID)
		}
		rows[e.PlayerID]++
	}
}

func TestFinishedGameIsArchivedOnce(t *testing.T) {
	archived := make(chan *game.Room, 4)
	rm, _ := newManager(t, game.WithArchiver(archiveFunc(func(ctx context.Context, room *game.Room) error {
		archived <- room
		return nil
	})))
	ctx := context.Background()
	room := createPlaying(t, rm, game.ModeSequential)

	if _, err := rm.SubmitGuess(ctx, room.Code, "p1", room.Word); err != nil {
		t.Fatalf("winning guess: %v", err)
	}
	select {
	case r := <-archived:
		if r.WinnerID != "p1" || r.Status != game.StatusFinished {
			t.Fatalf("unexpected archived room %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("finished game was not archived")
	}

	// votes on a finished room must not archive it again
	if _, _, err := rm.RequestRestart(ctx, room.Code, "p1"); err != nil {
		t.Fatalf("restart vote: %v", err)
	}
	select {
	case <-archived:
		t.Fatal("room archived twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRestartFlow(t *testing.T) {
	rm, _ := newManager(t)
	ctx := context.Background()
	room := createPlaying(t, rm, game.ModeSequential)
	if _, err := rm.SubmitGuess(ctx, room.Code, "p1", room.Word); err != nil {
		t.Fatalf("guess: %v", err)
	}

	_, restarted, err := rm.RequestRestart(ctx, room.Code, "p1")
	if err != nil || restarted {
		t.Fatalf("first vote: %v %v", restarted, err)
	}
	after, restarted, err := rm.RequestRestart(ctx, room.Code, "p2")
	if err != nil || !restarted {
		t.Fatalf("second vote should restart: %v %v", restarted, err)
	}
	if after.Status != game.StatusPlaying || len(after.GameHistory) != 0 {
		t.Fatalf("expected a fresh game, got %s with %d rows", after.Status, len(after.GameHistory))
	}

	waiting, _ := rm.CreateRoom(ctx, game.CreateParams{Mode: game.ModeSequential, Host: game.Player{ID: "h"}})
	if _, err := rm.Restart(ctx, waiting.Code); !errors.Is(err, game.ErrGameNotPlaying) {
		t.Fatalf("expected ErrGameNotPlaying, got %v", err)
	}
	if _, err := rm.Restart(ctx, room.Code); err != nil {
		t.Fatalf("forced restart: %v", err)
	}
}

// connectedRooms reports every player of the listed rooms as connected.
type connectedRooms map[string]bool

func (c connectedRooms) Connected(code, playerID string) bool { return c[code] }

func TestSweepEvictsIdleRooms(t *testing.T) {
	c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	rm, _ := newManager(t, game.WithClock(c.Now))
	ctx := context.Background()

	idle := createPlaying(t, rm, game.ModeSequential)
	busy := createPlaying(t, rm, game.ModeSequential)
	rm.SetLiveness(connectedRooms{busy.Code: true})
	for _, id := range []string{"p1", "p2"} {
		if _, err := rm.SetPresence(ctx, idle.Code, id, game.PresenceDisconnected); err != nil {
			t.Fatalf("presence: %v", err)
		}
	}

	c.Advance(time.Hour)
	evicted, err := rm.Sweep(ctx, 2*time.Hour)
	if err != nil || len(evicted) != 0 {
		t.Fatalf("nothing should expire yet, got %v %v", evicted, err)
	}

	c.Advance(90 * time.Minute)
	evicted, err = rm.Sweep(ctx, 2*time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != idle.Code {
		t.Fatalf("expected only %s evicted, got %v", idle.Code, evicted)
	}
	if _, err := rm.Get(ctx, idle.Code); !errors.Is(err, game.ErrRoomNotFound) {
		t.Fatalf("expected evicted room to be gone, got %v", err)
	}
	if _, err := rm.Get(ctx, busy.Code); err != nil {
		t.Fatalf("room with online players must survive: %v", err)
	}
}

func TestSweepEvictsRoomsNobodyConnectedTo(t *testing.T) {
	c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	// Without a liveness source, players created online over REST still
	// expire once they have not been seen for the ttl.
	rm, _ := newManager(t, game.WithClock(c.Now))
	room, err := rm.CreateRoom(ctx, game.CreateParams{Mode: game.ModeDuel, Host: game.Player{ID: "p1", Name: "Ayşe"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if room.Players[0].Status != game.PresenceOnline {
		t.Fatalf("expected host online, got %s", room.Players[0].Status)
	}
	c.Advance(30 * 24 * time.Hour)
	evicted, err := rm.Sweep(ctx, 2*time.Hour)
	if err != nil || len(evicted) != 1 || evicted[0] != room.Code {
		t.Fatalf("expected %s evicted, got %v %v", room.Code, evicted, err)
	}

	// With one, a stored "online" does not keep a room nobody holds a
	// connection to.
	rm, _ = newManager(t, game.WithClock(c.Now))
	rm.SetLiveness(connectedRooms{})
	joined := createPlaying(t, rm, game.ModeSequential)
	c.Advance(3 * time.Hour)
	evicted, err = rm.Sweep(ctx, 2*time.Hour)
	if err != nil || len(evicted) != 1 || evicted[0] != joined.Code {
		t.Fatalf("expected %s evicted, got %v %v", joined.Code, evicted, err)
	}
}

func TestCodeHelpers(t *testing.T) {
	if game.NormalizeCode(" ab12cd ") != "AB12CD" {
		t.Fatal("code should be trimmed and upper-cased")
	}
	for code, want := range map[string]bool{"AB12CD": true, "AB12C": false, "AB12CDE": false, "AB-2CD": false, "ab12cd": false} {
		if game.ValidCode(code) != want {
			t.Fatalf("ValidCode(%q) expected %v", code, want)
		}
	}
}
