package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// wsError is sent as a text frame when a request fails. The connection
// stays open for the next request.
type wsError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// handleWebsocket serves one synthesis per text frame: the client sends a
// synthesizeRequest as JSON and receives the rendered audio as one binary
// frame, or a wsError text frame.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxBodyBytes)
	s.logger.Debug("websocket connected", "remote", r.RemoteAddr)

	ctx := r.Context()
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			if !s.wsSendError(conn, http.StatusBadRequest, "expected a JSON text message") {
				return
			}
			continue
		}

		var req synthesizeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if !s.wsSendError(conn, http.StatusBadRequest, "invalid json: "+err.Error()) {
				return
			}
			continue
		}
		if strings.TrimSpace(req.Text) == "" {
			if !s.wsSendError(conn, http.StatusBadRequest, "Missing 'text' in request payload") {
				return
			}
			continue
		}
		if !s.limiter.Allow() {
			if !s.wsSendError(conn, http.StatusTooManyRequests, "Too many requests") {
				return
			}
			continue
		}

		audio, err := s.backend.Render(ctx, req.toSynthesis(), req.Format)
		if err != nil {
			code, msg := statusFor(err)
			if code >= http.StatusInternalServerError {
				s.logger.Error("websocket synthesis failed", "error", err)
			}
			if !s.wsSendError(conn, code, msg) {
				return
			}
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// wsSendError reports whether the connection is still usable.
func (s *Server) wsSendError(conn *websocket.Conn, status int, msg string) bool {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(wsError{Status: status, Message: msg}); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
		return false
	}
	return true
}
