package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// wsConn is a plain websocket client. Frames are JSON Messages written by a
// single pump goroutine.
type wsConn struct {
	id           string
	conn         *websocket.Conn
	send         chan Message
	done         chan struct{}
	once         sync.Once
	writeTimeout time.Duration
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(m Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.conn.Close()
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case m := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteJSON(m); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

func (srv *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || srv.opts.AllowOrigin(origin)
		},
	}
}

// ServeWebSocket upgrades the request and runs the connection until it closes.
func (srv *Server) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	up := srv.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		srv.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	c := &wsConn{
		id:           "ws-" + uuid.NewString(),
		conn:         conn,
		send:         make(chan Message, srv.opts.SendBuffer),
		done:         make(chan struct{}),
		writeTimeout: srv.opts.WriteTimeout,
	}
	srv.log.Info().Str("conn", c.id).Str("remote", r.RemoteAddr).Msg("websocket connected")
	go c.writePump()

	ctx := context.Background()
	defer func() {
		_ = c.Close()
		srv.Disconnect(ctx, c)
		srv.log.Info().Str("conn", c.id).Msg("websocket disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				srv.log.Warn().Err(err).Str("conn", c.id).Msg("websocket read failed")
			}
			return
		}
		srv.Handle(ctx, c, frame)
	}
}

// MountWebSocket registers the plain websocket endpoint at /ws.
func (srv *Server) MountWebSocket(r *gin.Engine) {
	r.GET("/ws", gin.WrapF(srv.ServeWebSocket))
}
