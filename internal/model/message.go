package model

import "time"

type SenderRole string

const (
	SenderAgent    SenderRole = "agent"
	SenderCustomer SenderRole = "customer"
)

// Opposite returns the counterpart role, used when a pushed message omits its sender.
func (r SenderRole) Opposite() SenderRole {
	if r == SenderAgent {
		return SenderCustomer
	}
	return SenderAgent
}

func (r SenderRole) Valid() bool {
	return r == SenderAgent || r == SenderCustomer
}

type ContentType string

const (
	ContentText   ContentType = "text"
	ContentImage  ContentType = "image"
	ContentFile   ContentType = "file"
	ContentSystem ContentType = "system"
)

// DeliveryState tracks optimistic sends. Messages loaded from the server are always sent.
type DeliveryState string

const (
	DeliverySent    DeliveryState = "sent"
	DeliveryPending DeliveryState = "pending"
	DeliveryFailed  DeliveryState = "failed"
)

type Message struct {
	ID               int64         `json:"id"`
	ConversationUUID string        `json:"conv_uuid"`
	Content          string        `json:"content"`
	Sender           SenderRole    `json:"sender_type"`
	ContentType      ContentType   `json:"content_type"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	LocalID          string        `json:"-"`
	Delivery         DeliveryState `json:"-"`
	DeliveryError    string        `json:"-"`
}

func (m Message) Pending() bool {
	return m.Delivery == DeliveryPending
}

// PageState is the pagination state of one conversation's message sequence.
type PageState struct {
	Page    int    `json:"page"`
	HasMore bool   `json:"has_more"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Loaded reports whether at least one page has been applied.
func (p PageState) Loaded() bool {
	return p.Page > 0
}
