package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
)

// sioConn adapts a Socket.IO connection to Conn. Emits go through a queue
// drained by one goroutine, so a slow client never blocks a room.
type sioConn struct {
	sc    socketio.Conn
	queue chan Message
	done  chan struct{}
	once  sync.Once
}

func newSIOConn(sc socketio.Conn, buffer int) *sioConn {
	c := &sioConn{
		sc:    sc,
		queue: make(chan Message, buffer),
		done:  make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *sioConn) ID() string { return "sio-" + c.sc.ID() }

func (c *sioConn) Send(m Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- m:
		return true
	default:
		return false
	}
}

func (c *sioConn) Close() error {
	c.stop()
	return c.sc.Close()
}

func (c *sioConn) stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *sioConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case m := <-c.queue:
			c.sc.Emit(m.Type, m)
		}
	}
}

func connOf(s socketio.Conn) *sioConn {
	c, _ := s.Context().(*sioConn)
	return c
}

// socketError handles payloads go-socket.io could not decode into an event
// struct. The sender gets the same error frame the websocket path sends.
func (srv *Server) socketError(s socketio.Conn, e error) {
	if s == nil {
		srv.log.Error().Err(e).Msg("socket error")
		return
	}
	srv.log.Warn().Str("sid", s.ID()).Err(e).Msg("socket error")
	msg := errorMessage("Invalid message")
	s.Emit(msg.Type, msg)
}

// MountSocketIO attaches the Socket.IO transport to r.
func (srv *Server) MountSocketIO(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)
	ctx := context.Background()

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(newSIOConn(s, srv.opts.SendBuffer))
		srv.log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	io.OnEvent("/", EventCreateRoom, func(s socketio.Conn, m CreateRoomMsg) {
		if c := connOf(s); c != nil {
			srv.CreateRoom(ctx, c, m)
		}
	})
	io.OnEvent("/", EventJoinRoom, func(s socketio.Conn, m JoinRoomMsg) {
		if c := connOf(s); c != nil {
			srv.JoinRoom(ctx, c, m)
		}
	})
	io.OnEvent("/", EventSubmitGuess, func(s socketio.Conn, m SubmitGuessMsg) {
		if c := connOf(s); c != nil {
			srv.SubmitGuess(ctx, c, m)
		}
	})
	io.OnEvent("/", EventPlayerReconnect, func(s socketio.Conn, m PlayerRoomMsg) {
		if c := connOf(s); c != nil {
			srv.Reconnect(ctx, c, m)
		}
	})
	io.OnEvent("/", EventRequestRestart, func(s socketio.Conn, m PlayerRoomMsg) {
		if c := connOf(s); c != nil {
			srv.RequestRestart(ctx, c, m)
		}
	})

	io.OnError("/", srv.socketError)
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		if c := connOf(s); c != nil {
			c.stop()
			srv.Disconnect(ctx, c)
		}
		srv.log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			srv.log.Error().Err(err).Msg("socket.io server stopped")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// CORS preflight for Socket.IO long polling
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && !srv.opts.AllowOrigin(origin) {
			c.Status(http.StatusForbidden)
			return
		}
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}
