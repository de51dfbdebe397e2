package ws

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kiliankoe/kelime/internal/game"
)

// Client to server events.
const (
	EventCreateRoom      = "create_room"
	EventJoinRoom        = "join_room"
	EventSubmitGuess     = "submit_guess"
	EventPlayerReconnect = "player_reconnect"
	EventRequestRestart  = "request_restart"
)

// Server to client events.
const (
	EventRoomCreated     = "room_created"
	EventRoomJoined      = "room_joined"
	EventRoomReconnected = "room_reconnected"
	EventRoomUpdate      = "room_update"
	EventError           = "error"
)

type PlayerInfo struct {
	ID     string `json:"id,omitempty" validate:"max=64"`
	Name   string `json:"name" validate:"required,max=24"`
	Avatar string `json:"avatar,omitempty" validate:"max=16"`
}

func (p PlayerInfo) player() game.Player {
	return game.Player{ID: p.ID, Name: strings.TrimSpace(p.Name), Avatar: p.Avatar}
}

type RoomData struct {
	Mode game.Mode  `json:"mode" validate:"required,oneof=sequential duel"`
	Host PlayerInfo `json:"host"`
}

type CreateRoomMsg struct {
	// RoomCode is optional; the server picks one when it is empty.
	RoomCode string   `json:"roomCode,omitempty" validate:"omitempty,len=6,alphanum"`
	RoomData RoomData `json:"roomData"`
	// PlayerID overrides RoomData.Host.ID.
	PlayerID string `json:"playerId,omitempty" validate:"max=64"`
}

type JoinRoomMsg struct {
	RoomCode string     `json:"roomCode" validate:"required,len=6,alphanum"`
	Player   PlayerInfo `json:"player"`
}

type SubmitGuessMsg struct {
	RoomCode string `json:"roomCode" validate:"required,len=6,alphanum"`
	Guess    string `json:"guess" validate:"required,max=32"`
	PlayerID string `json:"playerId" validate:"required,max=64"`
}

// PlayerRoomMsg is the payload of player_reconnect and request_restart.
type PlayerRoomMsg struct {
	RoomCode string `json:"roomCode" validate:"required,len=6,alphanum"`
	PlayerID string `json:"playerId" validate:"required,max=64"`
}

// Message is every server to client frame. Type doubles as the Socket.IO
// event name.
type Message struct {
	Type     string     `json:"type"`
	RoomCode string     `json:"roomCode,omitempty"`
	Room     *game.Room `json:"room,omitempty"`
	PlayerID string     `json:"playerId,omitempty"`
	Message  string     `json:"message,omitempty"`
}

func errorMessage(text string) Message {
	return Message{Type: EventError, Message: text}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// invalidFields lists the json names of the fields that failed validation.
func invalidFields(err error) []string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		out = append(out, ns)
	}
	return out
}
