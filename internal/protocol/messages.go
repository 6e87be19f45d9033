package protocol

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl MessageType = "client_control"
	TypeState         MessageType = "state"
	TypeWake          MessageType = "wake"
	TypeTurn          MessageType = "turn"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

// Client control actions.
const (
	ActionPing   = "ping"
	ActionStatus = "status"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

// StateEvent is published on every session state machine transition.
type StateEvent struct {
	Type      MessageType `json:"type"`
	State     string      `json:"state"`
	SessionID string      `json:"session_id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	Turn      int         `json:"turn"`
	Reason    string      `json:"reason,omitempty"`
	TSMs      int64       `json:"ts_ms"`
}

// WakeEvent is published when a transcript matches a wake phrase.
type WakeEvent struct {
	Type   MessageType `json:"type"`
	Heard  string      `json:"heard"`
	Phrase string      `json:"phrase"`
	Score  int         `json:"score"`
	Method string      `json:"method"`
	TSMs   int64       `json:"ts_ms"`
}

// TurnEvent is published after a reply has been spoken.
type TurnEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Turn      int         `json:"turn"`
	UserText  string      `json:"user_text"`
	Reply     string      `json:"reply"`
	Source    string      `json:"source"`
	TSMs      int64       `json:"ts_ms"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
