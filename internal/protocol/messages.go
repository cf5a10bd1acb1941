package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatMessage  MessageType = "chat_message"
	TypeClear        MessageType = "clear"
	TypeChatResponse MessageType = "chat_response"
	TypeCleared      MessageType = "cleared"
	TypeErrorEvent   MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatMessage carries one user message. Message is validated by the chat service, not here.
type ChatMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type Clear struct {
	Type MessageType `json:"type"`
}

type ChatResponse struct {
	Type     MessageType `json:"type"`
	Response string      `json:"response"`
}

type Cleared struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// ErrorEvent mirrors the HTTP error body; Status is the code the HTTP route would have answered with.
type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Status    int         `json:"status"`
	Retryable bool        `json:"retryable"`
	Error     string      `json:"error"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeClear:
		return Clear{Type: TypeClear}, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf reports the frame type of a protocol value.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case ChatMessage:
		return m.Type, true
	case Clear:
		return m.Type, true
	case ChatResponse:
		return m.Type, true
	case Cleared:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
