package relay

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// MessageType is the value of the "mtype" tag on the wire.
type MessageType string

// Inbound types.
const (
	TypeInit MessageType = "INIT"
	TypeText MessageType = "TEXT"
	TypeDM   MessageType = "DM"
)

// Outbound types. DM is reused for delivered private messages.
const (
	TypeUserEnter MessageType = "USER_ENTER"
	TypeUserLeave MessageType = "USER_LEAVE"
	TypeMsg       MessageType = "MSG"
)

var validate = validator.New()

// Inbound is a decoded client message.
type Inbound struct {
	Type MessageType `json:"mtype" validate:"required,oneof=INIT TEXT DM"`
	ID   string      `json:"id" validate:"required_if=Type INIT"`
	To   string      `json:"to"`
	Text string      `json:"text"`
}

// Decode parses and validates a raw inbound payload. Every failure wraps
// ErrProtocol; an unrecognised mtype also wraps ErrUnknownType.
func Decode(raw []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if err := validate.Struct(msg); err != nil {
		if msg.Type != "" && msg.Type != TypeInit && msg.Type != TypeText && msg.Type != TypeDM {
			return Inbound{}, fmt.Errorf("%w %q", ErrUnknownType, msg.Type)
		}
		return Inbound{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return msg, nil
}

// presenceEvent is USER_ENTER / USER_LEAVE.
type presenceEvent struct {
	Type MessageType `json:"mtype"`
	ID   string      `json:"id"`
}

// chatMessage is MSG / DM as delivered to recipients.
type chatMessage struct {
	Type MessageType `json:"mtype"`
	ID   string      `json:"id"`
	Text string      `json:"text"`
}

func encodePresence(t MessageType, id string) []byte {
	b, _ := json.Marshal(presenceEvent{Type: t, ID: id})
	return b
}

func encodeChat(t MessageType, from, text string) []byte {
	b, _ := json.Marshal(chatMessage{Type: t, ID: from, Text: text})
	return b
}
