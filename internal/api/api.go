// Package api is the REST surface over the room manager. Every write goes
// through the same typed operations as the live channel, so REST callers and
// socket clients see one ordered stream of updates.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/kiliankoe/kelime/internal/archive"
	"github.com/kiliankoe/kelime/internal/game"
	"github.com/rs/zerolog"
)

const (
	defaultResultLimit = 20
	maxResultLimit     = 100
)

type Handler struct {
	rm      *game.RoomManager
	results archive.Lister
	log     zerolog.Logger
}

// New builds the handler. results may be nil when no queryable archive is
// configured.
func New(rm *game.RoomManager, results archive.Lister, log zerolog.Logger) *Handler {
	return &Handler{rm: rm, results: results, log: log}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.health)
	r.GET("/room/:code", h.getRoom)
	r.PUT("/room/:code", h.putRoom)
	r.PATCH("/room/:code", h.patchRoom)
	r.GET("/results", h.listResults)
}

type playerBody struct {
	ID     string `json:"id" binding:"max=64"`
	Name   string `json:"name" binding:"required,max=24"`
	Avatar string `json:"avatar" binding:"max=16"`
}

func (p playerBody) player() game.Player {
	return game.Player{ID: p.ID, Name: strings.TrimSpace(p.Name), Avatar: p.Avatar}
}

type createBody struct {
	Mode game.Mode  `json:"mode" binding:"required,oneof=sequential duel"`
	Host playerBody `json:"host"`
}

type guessBody struct {
	PlayerID string `json:"playerId" binding:"required,max=64"`
	Guess    string `json:"guess" binding:"required,max=32"`
}

type playerRef struct {
	PlayerID string `json:"playerId" binding:"required,max=64"`
}

type presenceBody struct {
	PlayerID string        `json:"playerId" binding:"required,max=64"`
	Status   game.Presence `json:"status" binding:"required,oneof=online disconnected"`
}

// patchBody carries exactly one operation.
type patchBody struct {
	Join           *playerBody   `json:"join"`
	Guess          *guessBody    `json:"guess"`
	RestartRequest *playerRef    `json:"restartRequest"`
	Presence       *presenceBody `json:"presence"`
}

func (b patchBody) ops() int {
	n := 0
	for _, set := range []bool{b.Join != nil, b.Guess != nil, b.RestartRequest != nil, b.Presence != nil} {
		if set {
			n++
		}
	}
	return n
}

func (h *Handler) health(c *gin.Context) {
	n, err := h.rm.Count(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC(), "rooms": n})
}

func (h *Handler) getRoom(c *gin.Context) {
	room, err := h.rm.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) putRoom(c *gin.Context) {
	var body createBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	room, err := h.rm.CreateRoom(c.Request.Context(), game.CreateParams{
		Code: c.Param("code"),
		Mode: body.Mode,
		Host: body.Host.player(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *Handler) patchRoom(c *gin.Context) {
	var body patchBody
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if body.ops() != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Send exactly one of join, guess, restartRequest, presence"})
		return
	}
	if err := binding.Validator.ValidateStruct(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx := c.Request.Context()
	code := c.Param("code")
	var (
		room *game.Room
		err  error
	)
	switch {
	case body.Join != nil:
		room, err = h.rm.JoinRoom(ctx, code, body.Join.player())
	case body.Guess != nil:
		room, err = h.rm.SubmitGuess(ctx, code, body.Guess.PlayerID, body.Guess.Guess)
	case body.RestartRequest != nil:
		room, _, err = h.rm.RequestRestart(ctx, code, body.RestartRequest.PlayerID)
	case body.Presence != nil:
		room, err = h.rm.SetPresence(ctx, code, body.Presence.PlayerID, body.Presence.Status)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) listResults(c *gin.Context) {
	if h.results == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Results archive is not enabled"})
		return
	}
	limit := defaultResultLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number"})
			return
		}
		limit = min(n, maxResultLimit)
	}
	recs, err := h.results.Recent(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": recs})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": game.UserMessage(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrRoomExists),
		errors.Is(err, game.ErrRoomFull),
		errors.Is(err, game.ErrRoomNotJoinable),
		errors.Is(err, game.ErrNotYourTurn),
		errors.Is(err, game.ErrGameNotPlaying),
		errors.Is(err, game.ErrPlayerExhausted):
		return http.StatusConflict
	case errors.Is(err, game.ErrInvalidWord),
		errors.Is(err, game.ErrInvalidMode),
		errors.Is(err, game.ErrInvalidCode),
		errors.Is(err, game.ErrPlayerNotInRoom):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
