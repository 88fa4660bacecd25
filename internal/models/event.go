package models

import "time"

// PresenceEvent is published on a chat's presence channel.
type PresenceEvent struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// EventType names an event pushed to UI clients over the event stream.
type EventType string

const (
	EventSession        EventType = "session"
	EventMessages       EventType = "messages"
	EventUploadProgress EventType = "upload_progress"
	EventSidebar        EventType = "sidebar"
	EventTyping         EventType = "typing"
	EventAuthRequired   EventType = "auth_required"
)

// Event is the envelope written to UI WebSocket clients.
type Event struct {
	Type      EventType   `json:"type"`
	ChatID    string      `json:"chatId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
