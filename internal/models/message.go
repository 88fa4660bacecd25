package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// MessageType is the kind of content a message carries.
type MessageType string

const (
	MessageTypeText     MessageType = "TEXT"
	MessageTypeImage    MessageType = "IMAGE"
	MessageTypeVideo    MessageType = "VIDEO"
	MessageTypeFile     MessageType = "FILE"
	MessageTypeDocument MessageType = "DOCUMENT"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeFile, MessageTypeDocument:
		return true
	}
	return false
}

// MessageID is a server-issued message identifier. The backend emits it either
// as a JSON number or a JSON string; both decode to the same value.
type MessageID string

func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	*id = MessageID(n.String())
	return nil
}

// Message is a chat message in the shape the backend returns it.
type Message struct {
	ID               MessageID   `json:"id"`
	ChatID           string      `json:"chatId"`
	SenderID         string      `json:"senderId"`
	Content          string      `json:"content"`
	MessageType      MessageType `json:"messageType"`
	FileURL          string      `json:"fileUrl,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	TimestampDisplay string      `json:"timestampDisplay,omitempty"`
}

// SendMessageRequest is the body of POST /chat/{chatId}/messages.
type SendMessageRequest struct {
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType"`
	FileURL     string      `json:"fileUrl,omitempty"`
}

// LocalID identifies a message that the server has not confirmed yet.
// It is unique per message store and never compared against server ids.
type LocalID uint64

// String renders the id the way the UI shows pending entries.
func (id LocalID) String() string {
	return "temp-" + strconv.FormatUint(uint64(id), 10)
}

// StoredMessage is an entry of a message store: either a PendingMessage or a
// ResolvedMessage, never both.
type StoredMessage interface {
	// Value returns the message as currently known.
	Value() Message
	// Key is the identifier rendered to the UI.
	Key() string
	isStoredMessage()
}

// PendingMessage is an optimistic entry awaiting the server's response.
type PendingMessage struct {
	LocalID LocalID
	Draft   Message
}

func (p PendingMessage) Value() Message { return p.Draft }
func (p PendingMessage) Key() string    { return p.LocalID.String() }
func (PendingMessage) isStoredMessage() {}

// ResolvedMessage is an entry carrying a server-issued identifier.
type ResolvedMessage struct {
	Message
}

func (r ResolvedMessage) Value() Message { return r.Message }
func (r ResolvedMessage) Key() string    { return string(r.ID) }
func (ResolvedMessage) isStoredMessage() {}

// MessageView is the JSON form of a store entry pushed to the UI.
type MessageView struct {
	Key     string  `json:"key"`
	Pending bool    `json:"pending"`
	Message Message `json:"message"`
}

// Views converts store entries into their UI form.
func Views(entries []StoredMessage) []MessageView {
	out := make([]MessageView, 0, len(entries))
	for _, e := range entries {
		_, pending := e.(PendingMessage)
		out = append(out, MessageView{Key: e.Key(), Pending: pending, Message: e.Value()})
	}
	return out
}
