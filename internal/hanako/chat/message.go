// Package chat defines the conversation data model shared by the store, the
// history reducer, the memory layer, and the LLM clients.
package chat

import (
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType discriminates the typed content parts of a multi-part message.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
)

// Part is one typed element of a multi-part message. Text parts carry Text;
// image parts carry ImageURL (a data URL or an https URL the completion
// service can fetch).
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

// Message is one turn of conversation. Content is either plain Text or an
// ordered sequence of Parts; when Parts is non-empty, Text is ignored.
// SenderID is empty for system- and assistant-authored messages.
type Message struct {
	ID        string
	RoomID    string
	SenderID  string
	Role      Role
	Text      string
	Parts     []Part
	CreatedAt time.Time
}

// TextMessage returns a plain-text message with the given role.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// PlainText flattens the message content to text: the Text field for simple
// messages, or the concatenation of all text parts for multi-part messages.
func (m Message) PlainText() string {
	if len(m.Parts) == 0 {
		return m.Text
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText && p.Text != "" {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// HasImage reports whether any content part references an image.
func (m Message) HasImage() bool {
	for _, p := range m.Parts {
		if p.Type == PartImage {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the message carries no content at all. Empty
// messages must never be persisted.
func (m Message) IsEmpty() bool {
	if len(m.Parts) == 0 {
		return strings.TrimSpace(m.Text) == ""
	}
	for _, p := range m.Parts {
		if p.Type == PartImage && p.ImageURL != "" {
			return false
		}
		if p.Type == PartText && strings.TrimSpace(p.Text) != "" {
			return false
		}
	}
	return true
}
