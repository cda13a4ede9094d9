package dto

import (
	"encoding/json"
	"time"

	"chat-app-client/internal/model"
)

// Envelope is the uniform REST response wrapper. Code 200 signals success.
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

const CodeOK = 200

// Page is the data payload of every paginated listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type CreateConversationRequest struct {
	Source string `json:"source"`
}

type CreateConversationResponse struct {
	ID   int64  `json:"id"`
	UUID string `json:"uuid"`
}

type SendMessageRequest struct {
	ConversationID   int64             `json:"conversation_id,omitempty"`
	ConversationUUID string            `json:"conv_uuid"`
	Content          string            `json:"content"`
	Sender           model.SenderRole  `json:"sender_type"`
	ContentType      model.ContentType `json:"content_type"`
}

type ConversationStatusRequest struct {
	Status model.ConversationStatus `json:"status"`
}

type SourceRequest struct {
	Name        string `json:"name"`
	Tag         string `json:"tag"`
	Description string `json:"description,omitempty"`
}

type ConfigValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SetAgentRequest struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Enabled  bool   `json:"enabled"`
}

type VerifyPermissionRequest struct {
	Permission string `json:"permission"`
}

type VerifyPermissionResponse struct {
	Allowed bool `json:"allowed"`
}

// EventType names a WebSocket envelope kind.
type EventType string

const (
	EventNewConversation EventType = "new_conversation"
	EventNewMessage      EventType = "new_message"
)

// SocketEnvelope is the {type, data} text frame pushed over the WebSocket.
type SocketEnvelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MessagePush is the data of a new_message envelope. Sender is optional on the wire.
type MessagePush struct {
	ID               int64             `json:"id"`
	ConversationUUID string            `json:"conv_uuid"`
	Content          string            `json:"content"`
	Sender           model.SenderRole  `json:"sender_type,omitempty"`
	ContentType      model.ContentType `json:"content_type,omitempty"`
	CreatedAt        time.Time         `json:"created_at,omitempty"`
}

// ToMessage converts the push, attributing fallbackSender when the wire omits it.
func (p MessagePush) ToMessage(fallbackSender model.SenderRole, now time.Time) model.Message {
	sender := p.Sender
	if !sender.Valid() {
		sender = fallbackSender
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = model.ContentText
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = now
	}
	id := p.ID
	if id == 0 {
		id = now.UnixMilli()
	}
	return model.Message{
		ID:               id,
		ConversationUUID: p.ConversationUUID,
		Content:          p.Content,
		Sender:           sender,
		ContentType:      contentType,
		CreatedAt:        created,
		UpdatedAt:        created,
		Delivery:         model.DeliverySent,
	}
}
