package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/azchat/internal/completion"
	"github.com/antoniostano/azchat/internal/protocol"
	"github.com/antoniostano/azchat/internal/reliability"
)

const (
	wsReadLimit    = 1 << 20
	wsIdleTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handleChatWS serves the chat exchange over a websocket. Frames are handled
// one at a time, so a connection never has more than one completion in flight.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	clientID := clientIDFrom(r)
	log := s.log.With().Str("client_id", clientID).Str("conn_id", uuid.NewString()).Logger()
	log.Debug().Msg("websocket connected")
	defer log.Debug().Msg("websocket disconnected")

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	})

	ctx := r.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			code := "invalid_client_message"
			if errors.Is(err, protocol.ErrUnsupportedType) {
				code = "unsupported_type"
			}
			if !s.writeFrame(conn, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   code,
				Status: http.StatusBadRequest,
				Error:  err.Error(),
			}) {
				return
			}
			continue
		}
		s.countWS("inbound", parsed)

		var out any
		switch m := parsed.(type) {
		case protocol.ChatMessage:
			started := time.Now()
			reply, err := s.chat.Send(ctx, clientID, m.Message)
			if err != nil {
				s.observe("ws", outcomeFor(err), started)
				out = errorEvent(err)
				break
			}
			s.observe("ws", "ok", started)
			out = protocol.ChatResponse{Type: protocol.TypeChatResponse, Response: reply}
		case protocol.Clear:
			if err := s.chat.Clear(ctx, clientID); err != nil {
				out = protocol.ErrorEvent{
					Type:   protocol.TypeErrorEvent,
					Code:   "clear_failed",
					Status: http.StatusInternalServerError,
					Error:  err.Error(),
				}
				break
			}
			out = protocol.Cleared{Type: protocol.TypeCleared, Message: clearedMessage}
		}
		if !s.writeFrame(conn, out) {
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		s.log.Debug().Err(err).Msg("websocket write failed")
		return false
	}
	s.countWS("outbound", v)
	return true
}

func (s *Server) countWS(direction string, v any) {
	if s.metrics == nil {
		return
	}
	if t, ok := protocol.TypeOf(v); ok {
		s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
	}
}

func errorEvent(err error) protocol.ErrorEvent {
	status, message := errorStatus(err)
	code := outcomeFor(err)
	if code == "" {
		code = "error"
	}
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		Code:      code,
		Status:    status,
		Retryable: reliability.IsRetryableHTTPStatus(status) && completion.Classify(err) != completion.KindUnknown,
		Error:     message,
	}
}
