// Package ws serves the browser realtime transport: a websocket endpoint
// that carries the same events as the gRPC Subscribe stream, plus a health
// check.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/presence"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

type presenceRegistry interface {
	Connect(ctx context.Context, userID string, s presence.Session)
	Disconnect(ctx context.Context, userID, sessionID string)
}

type sessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type Handler struct {
	sessions sessionAuthenticator
	registry presenceRegistry
	upgrader websocket.Upgrader
	buffer   int
	logger   logging.Logger
}

func NewHandler(cfg *config.Config, l logging.Logger, sa sessionAuthenticator, reg presenceRegistry) *Handler {
	h := &Handler{
		sessions: sa,
		registry: reg,
		buffer:   cfg.SessionBufferSize,
		logger:   l.With("module", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if cfg.AllowedOrigin != "" {
		h.upgrader.CheckOrigin = allowOrigin(cfg.AllowedOrigin)
	}
	return h
}

// allowOrigin accepts requests without an Origin header (non-browser
// clients) and requests from the configured origin.
func allowOrigin(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}

// tokenFromRequest reads the session token from the jwt cookie, falling
// back to the token query parameter.
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(common.SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get(common.SessionTokenQueryParam)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.sessions.Authenticate(ctx, tokenFromRequest(r))
	if err != nil {
		h.logger.Warn(ctx, "session rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn(ctx, "websocket upgrade failed", "error", err)
		return
	}

	sess := presence.NewChanSession(h.buffer)
	h.registry.Connect(ctx, user.ID, sess)
	defer h.registry.Disconnect(context.WithoutCancel(ctx), user.ID, sess.ID())

	h.logger.Info(ctx, "session opened", "user_id", user.ID, "session_id", sess.ID())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ctx, conn, sess)
	}()

	readPump(conn)

	sess.Close()
	<-writerDone
}

// readPump consumes client frames until the connection fails. Clients
// send nothing meaningful; reading keeps pong handling alive.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards session events as JSON text frames and pings the
// client. It closes the connection on exit, which also ends readPump.
func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, sess *presence.ChanSession) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-sess.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case ev := <-sess.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug(ctx, "websocket write failed", "session_id", sess.ID(), "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
