// Package server hosts the websocket transport, the session manager, and
// the in-memory conversation history store.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/anima-voice/anima/internal/protocol"
)

// Server terminates client websocket connections and feeds their frames to
// the Manager.
type Server struct {
	manager *Manager
}

// NewServer returns a Server over manager.
func NewServer(manager *Manager) *Server {
	return &Server{manager: manager}
}

// Manager exposes the underlying session manager.
func (srv *Server) Manager() *Manager {
	return srv.manager
}

// ServeHTTP upgrades the request and runs the session read loop until the
// client goes away.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow()

	// Audio frames can be large: a few seconds of float64 JSON.
	conn.SetReadLimit(16 << 20)

	ctx := r.Context()

	var writeMu sync.Mutex
	send := func(ctx context.Context, msg any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return wsjson.Write(ctx, conn, msg)
	}

	session, err := srv.manager.Connect(ctx, send)
	if err != nil {
		slog.Error("session setup failed", "remote", r.RemoteAddr, "error", err)
		conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	defer srv.manager.Disconnect(session)

	for {
		var in protocol.Inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				return
			}
			slog.Debug("read loop ended", "sid", session.ID, "error", err)
			return
		}
		srv.manager.HandleMessage(ctx, session, in)
	}
}
