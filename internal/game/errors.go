package game

import (
	"errors"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room code already in use")
	ErrRoomFull        = errors.New("room full")
	ErrRoomNotJoinable = errors.New("room not joinable")
	ErrPlayerNotInRoom = errors.New("player not in room")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrGameNotPlaying  = errors.New("game not playing")
	ErrInvalidWord     = errors.New("invalid word")
	ErrPlayerExhausted = errors.New("player exhausted")
	ErrInvalidMode     = errors.New("invalid mode")
	ErrInvalidCode     = errors.New("invalid room code")
	ErrCodeSpaceFull   = errors.New("could not allocate a free room code")

	// ErrInvariant marks a state that the rules should have made impossible.
	ErrInvariant = errors.New("room invariant violated")
)

var userMessages = map[error]string{
	ErrRoomNotFound:    "Room not found",
	ErrRoomExists:      "Room code already in use",
	ErrRoomFull:        "Room is full",
	ErrRoomNotJoinable: "Game already started",
	ErrPlayerNotInRoom: "You are not a player in this room",
	ErrNotYourTurn:     "Not your turn",
	ErrGameNotPlaying:  "Game is not in progress",
	ErrInvalidWord:     "Not a valid word",
	ErrPlayerExhausted: "You have no guesses left",
	ErrInvalidMode:     "Unknown game mode",
	ErrInvalidCode:     "Room codes are six letters or digits",
}

// IsDomainError reports whether err is an expected rule violation that can be
// shown to the player as is.
func IsDomainError(err error) bool {
	for target := range userMessages {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// UserMessage returns the client-facing text for err. Unknown errors collapse
// to a generic message so internals never leak to clients.
func UserMessage(err error) string {
	for target, msg := range userMessages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return "Something went wrong"
}
