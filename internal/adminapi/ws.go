// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package adminapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The admin API is same-origin tooling (TUI/companion app talking to a
	// local daemon), not a browser-facing public endpoint.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 5 * time.Second

// handleStream upgrades to a websocket and pushes every distinct state
// change from control.Surface.StateStream until the client disconnects or
// the daemon shuts the stream down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	states, cancel := s.surface.StateStream(ctx)
	defer cancel()

	if err := conn.WriteJSON(toStateResponse(s.surface.State())); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(toStateResponse(st)); err != nil {
				s.logger.Debug("websocket write failed, closing", "err", err)
				return
			}
		}
	}
}
