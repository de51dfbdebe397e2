package ws

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kiliankoe/kelime/internal/game"
	"github.com/rs/zerolog"
)

type Options struct {
	// SendBuffer is the outbound queue length of each connection.
	SendBuffer int
	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration
	// AllowOrigin decides whether a browser origin may connect. Nil allows all.
	AllowOrigin func(origin string) bool
}

func (o Options) withDefaults() Options {
	if o.SendBuffer < 1 {
		o.SendBuffer = 32
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.AllowOrigin == nil {
		o.AllowOrigin = func(string) bool { return true }
	}
	return o
}

// Server turns live channel messages into RoomManager operations. Both the
// Socket.IO and the plain websocket transport feed into it.
type Server struct {
	RM       *game.RoomManager
	hub      *Hub
	opts     Options
	validate *validator.Validate
	log      zerolog.Logger
}

// New wires the hub in as the manager's publisher and liveness source.
func New(rm *game.RoomManager, hub *Hub, opts Options, log zerolog.Logger) *Server {
	rm.SetPublisher(hub)
	rm.SetLiveness(hub)
	return &Server{
		RM:       rm,
		hub:      hub,
		opts:     opts.withDefaults(),
		validate: newValidator(),
		log:      log,
	}
}

func (srv *Server) CreateRoom(ctx context.Context, c Conn, m CreateRoomMsg) {
	if !srv.valid(c, m) {
		return
	}
	host := m.RoomData.Host.player()
	if m.PlayerID != "" {
		host.ID = m.PlayerID
	}
	if host.ID == "" {
		host.ID = uuid.NewString()
	}
	room, err := srv.RM.CreateRoom(ctx, game.CreateParams{Code: m.RoomCode, Mode: m.RoomData.Mode, Host: host})
	if err != nil {
		srv.fail(c, EventCreateRoom, err)
		return
	}
	srv.log.Info().Str("conn", c.ID()).Str("code", room.Code).Str("playerId", host.ID).Msg(EventCreateRoom)
	srv.attach(ctx, c, room.Code, host.ID, EventRoomCreated)
}

func (srv *Server) JoinRoom(ctx context.Context, c Conn, m JoinRoomMsg) {
	if !srv.valid(c, m) {
		return
	}
	p := m.Player.player()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, err := srv.RM.JoinRoom(ctx, m.RoomCode, p); err != nil {
		srv.fail(c, EventJoinRoom, err)
		return
	}
	srv.log.Info().Str("conn", c.ID()).Str("code", game.NormalizeCode(m.RoomCode)).Str("playerId", p.ID).Msg(EventJoinRoom)
	srv.attach(ctx, c, m.RoomCode, p.ID, EventRoomJoined)
}

// attach binds c to playerID and sends it the current snapshot. Both happen
// inside the room's pipeline, so no update can slip in between.
func (srv *Server) attach(ctx context.Context, c Conn, code, playerID, event string) {
	err := srv.RM.View(ctx, code, func(r *game.Room) error {
		srv.hub.Bind(c, r.Code, playerID)
		srv.hub.Send(c, Message{Type: event, RoomCode: r.Code, Room: r, PlayerID: playerID})
		return nil
	})
	if err != nil {
		srv.fail(c, event, err)
	}
}

func (srv *Server) SubmitGuess(ctx context.Context, c Conn, m SubmitGuessMsg) {
	if !srv.valid(c, m) {
		return
	}
	if _, err := srv.RM.SubmitGuess(ctx, m.RoomCode, m.PlayerID, m.Guess); err != nil {
		srv.fail(c, EventSubmitGuess, err)
	}
}

// Reconnect re-routes playerID to c, sends c the full snapshot first and then
// marks the player online, which everyone sees as a room_update.
func (srv *Server) Reconnect(ctx context.Context, c Conn, m PlayerRoomMsg) {
	if !srv.valid(c, m) {
		return
	}
	err := srv.RM.View(ctx, m.RoomCode, func(r *game.Room) error {
		if r.PlayerIndex(m.PlayerID) < 0 {
			return game.ErrPlayerNotInRoom
		}
		srv.hub.Bind(c, r.Code, m.PlayerID)
		srv.hub.Send(c, Message{Type: EventRoomReconnected, RoomCode: r.Code, Room: r, PlayerID: m.PlayerID})
		return nil
	})
	if err != nil {
		srv.fail(c, EventPlayerReconnect, err)
		return
	}
	srv.log.Info().Str("conn", c.ID()).Str("code", game.NormalizeCode(m.RoomCode)).Str("playerId", m.PlayerID).Msg(EventPlayerReconnect)
	if _, err := srv.RM.SetPresence(ctx, m.RoomCode, m.PlayerID, game.PresenceOnline); err != nil {
		srv.fail(c, EventPlayerReconnect, err)
	}
}

func (srv *Server) RequestRestart(ctx context.Context, c Conn, m PlayerRoomMsg) {
	if !srv.valid(c, m) {
		return
	}
	_, restarted, err := srv.RM.RequestRestart(ctx, m.RoomCode, m.PlayerID)
	if err != nil {
		srv.fail(c, EventRequestRestart, err)
		return
	}
	if restarted {
		srv.log.Info().Str("code", game.NormalizeCode(m.RoomCode)).Msg("game restarted by consensus")
	}
}

// Disconnect runs when a transport closes. Only the player's active
// connection marks them disconnected.
func (srv *Server) Disconnect(ctx context.Context, c Conn) {
	code, playerID, active := srv.hub.Unbind(c)
	if !active {
		return
	}
	if _, err := srv.RM.SetPresence(ctx, code, playerID, game.PresenceDisconnected); err != nil {
		srv.log.Debug().Err(err).Str("code", code).Str("playerId", playerID).Msg("presence update after disconnect failed")
	}
}

// Handle decodes one plain websocket frame and dispatches it by type.
func (srv *Server) Handle(ctx context.Context, c Conn, frame []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		srv.log.Warn().Err(err).Str("conn", c.ID()).Msg("malformed frame")
		srv.hub.Send(c, errorMessage("Invalid message"))
		return
	}
	switch env.Type {
	case EventCreateRoom:
		var m CreateRoomMsg
		if srv.decode(c, frame, &m) {
			srv.CreateRoom(ctx, c, m)
		}
	case EventJoinRoom:
		var m JoinRoomMsg
		if srv.decode(c, frame, &m) {
			srv.JoinRoom(ctx, c, m)
		}
	case EventSubmitGuess:
		var m SubmitGuessMsg
		if srv.decode(c, frame, &m) {
			srv.SubmitGuess(ctx, c, m)
		}
	case EventPlayerReconnect:
		var m PlayerRoomMsg
		if srv.decode(c, frame, &m) {
			srv.Reconnect(ctx, c, m)
		}
	case EventRequestRestart:
		var m PlayerRoomMsg
		if srv.decode(c, frame, &m) {
			srv.RequestRestart(ctx, c, m)
		}
	default:
		srv.log.Warn().Str("conn", c.ID()).Str("type", env.Type).Msg("unknown message type")
		srv.hub.Send(c, errorMessage("Unknown message type"))
	}
}

func (srv *Server) decode(c Conn, frame []byte, v any) bool {
	if err := json.Unmarshal(frame, v); err != nil {
		srv.log.Warn().Err(err).Str("conn", c.ID()).Msg("malformed frame")
		srv.hub.Send(c, errorMessage("Invalid message"))
		return false
	}
	return true
}

func (srv *Server) valid(c Conn, m any) bool {
	err := srv.validate.Struct(m)
	if err == nil {
		return true
	}
	fields := invalidFields(err)
	srv.log.Debug().Str("conn", c.ID()).Strs("fields", fields).Msg("invalid message")
	text := "Invalid message"
	if len(fields) > 0 {
		text += ": " + strings.Join(fields, ", ")
	}
	srv.hub.Send(c, errorMessage(text))
	return false
}

// fail reports err to the acting connection only. Domain errors were already
// logged by the manager.
func (srv *Server) fail(c Conn, op string, err error) {
	if !game.IsDomainError(err) {
		srv.log.Warn().Err(err).Str("conn", c.ID()).Str("op", op).Msg("live operation failed")
	}
	srv.hub.Send(c, errorMessage(game.UserMessage(err)))
}
