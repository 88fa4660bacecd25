package models

import "time"

// Role is the marketplace role of a chat participant.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleInstructor Role = "INSTRUCTOR"
	RoleAdmin      Role = "ADMIN"
)

// ChatType distinguishes direct conversations from group conversations.
type ChatType string

const (
	ChatTypeIndividual ChatType = "INDIVIDUAL"
	ChatTypeGroup      ChatType = "GROUP"
)

// ChatParticipant is a snapshot of a user taking part in a chat, as returned by the backend.
// AvatarURL may be replaced by a fresher value from the avatar cache.
type ChatParticipant struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// DisplayName returns "First Last", falling back to the user id.
func (p ChatParticipant) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	}
	return p.UserID
}

// Chat is a conversation owned by the backend.
type Chat struct {
	ChatID       string            `json:"chatId"`
	ChatType     ChatType          `json:"chatType"`
	GroupName    string            `json:"groupName,omitempty"`
	Participants []ChatParticipant `json:"participants"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// IsGroup reports whether the chat is a group conversation.
func (c *Chat) IsGroup() bool {
	return c != nil && c.ChatType == ChatTypeGroup
}

// HasParticipant reports whether userID is a current participant.
func (c *Chat) HasParticipant(userID string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Clone returns a copy whose participant slice can be modified independently.
func (c *Chat) Clone() *Chat {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]ChatParticipant(nil), c.Participants...)
	return &out
}

// CreateChatRequest is the body of POST /chat.
type CreateChatRequest struct {
	ChatType       ChatType `json:"chatType"`
	RecipientID    string   `json:"recipientId"`
	InitialMessage string   `json:"initialMessage"`
}

// UpdateGroupInfoRequest is the body of PUT /chat/{chatId}/group-info.
type UpdateGroupInfoRequest struct {
	GroupName string `json:"groupName"`
}

// AddParticipantsRequest is the body of POST /chat/{chatId}/participants.
type AddParticipantsRequest struct {
	UserIDs []string `json:"userIds"`
}
