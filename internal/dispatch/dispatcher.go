// Package dispatch routes WebSocket envelopes into the registries.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-app-client/internal/dto"
	"chat-app-client/internal/logging"
	"chat-app-client/internal/model"
	"chat-app-client/internal/queue"
	"chat-app-client/internal/transport"
)

var ErrMalformedEnvelope = errors.New("dispatch: malformed envelope")

// ConversationSink receives conversation-level updates. The widget has none.
type ConversationSink interface {
	Add(c model.Conversation)
	UpdateLastMessage(uuid, text string, at time.Time) bool
}

// MessageSink receives messages for the active conversation.
type MessageSink interface {
	Add(convUUID string, m model.Message) bool
}

type Options struct {
	// Role is the local client's role. Messages pushed without a sender are
	// attributed to the opposite role.
	Role          model.SenderRole
	Conversations ConversationSink
	Messages      MessageSink
	QueueSize     int
	Logger        *zap.Logger
	Now           func() time.Time
}

type Dispatcher struct {
	role          model.SenderRole
	conversations ConversationSink
	messages      MessageSink
	log           *zap.Logger
	now           func() time.Time
	queue         *queue.Manager

	mu     sync.RWMutex
	active string
}

func New(opts Options) (*Dispatcher, error) {
	if !opts.Role.Valid() {
		return nil, fmt.Errorf("dispatch: invalid role %q", opts.Role)
	}
	if opts.Messages == nil {
		return nil, errors.New("dispatch: message sink is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	log := logging.OrComponent(opts.Logger, "dispatch")
	return &Dispatcher{
		role:          opts.Role,
		conversations: opts.Conversations,
		messages:      opts.Messages,
		log:           log,
		now:           opts.Now,
		queue:         queue.NewOrdered(opts.QueueSize, log),
	}, nil
}

// SetActive selects the conversation whose messages are appended live.
func (d *Dispatcher) SetActive(convUUID string) {
	d.mu.Lock()
	d.active = convUUID
	d.mu.Unlock()
}

func (d *Dispatcher) Active() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// OnFrame is a transport message listener. Frames are applied one at a time
// in arrival order.
func (d *Dispatcher) OnFrame(e transport.MessageEvent) error {
	data := e.Data
	return d.queue.Enqueue(context.Background(), queue.Job{Fn: func(ctx context.Context) error {
		if err := d.Handle(data); err != nil {
			d.log.Warn("frame dropped", zap.String("session_id", e.SessionID), zap.Error(err))
		}
		return nil
	}})
}

// Handle parses one text frame and applies it synchronously.
func (d *Dispatcher) Handle(data []byte) error {
	var env dto.SocketEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		envelopesTotal.WithLabelValues("invalid", "error").Inc()
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	switch env.Type {
	case dto.EventNewConversation:
		return d.handleNewConversation(env.Data)
	case dto.EventNewMessage:
		return d.handleNewMessage(env.Data)
	default:
		envelopesTotal.WithLabelValues("unknown", "ignored").Inc()
		d.log.Debug("ignoring envelope", zap.String("type", string(env.Type)))
		return nil
	}
}

func (d *Dispatcher) handleNewConversation(raw json.RawMessage) error {
	var c model.Conversation
	if err := json.Unmarshal(raw, &c); err != nil {
		envelopesTotal.WithLabelValues(string(dto.EventNewConversation), "error").Inc()
		return fmt.Errorf("%w: new_conversation: %v", ErrMalformedEnvelope, err)
	}
	if d.conversations == nil {
		envelopesTotal.WithLabelValues(string(dto.EventNewConversation), "ignored").Inc()
		return nil
	}
	d.conversations.Add(c)
	envelopesTotal.WithLabelValues(string(dto.EventNewConversation), "applied").Inc()
	return nil
}

func (d *Dispatcher) handleNewMessage(raw json.RawMessage) error {
	var push dto.MessagePush
	if err := json.Unmarshal(raw, &push); err != nil {
		envelopesTotal.WithLabelValues(string(dto.EventNewMessage), "error").Inc()
		return fmt.Errorf("%w: new_message: %v", ErrMalformedEnvelope, err)
	}
	if push.ConversationUUID == "" {
		envelopesTotal.WithLabelValues(string(dto.EventNewMessage), "error").Inc()
		return fmt.Errorf("%w: new_message without conv_uuid", ErrMalformedEnvelope)
	}

	msg := push.ToMessage(d.role.Opposite(), d.now())

	outcome := "summary"
	if push.ConversationUUID == d.Active() {
		if d.messages.Add(push.ConversationUUID, msg) {
			outcome = "applied"
		} else {
			outcome = "duplicate"
		}
	}
	if d.conversations != nil {
		d.conversations.UpdateLastMessage(push.ConversationUUID, msg.Content, msg.CreatedAt)
	}
	envelopesTotal.WithLabelValues(string(dto.EventNewMessage), outcome).Inc()
	return nil
}

// Close stops the frame queue. Frames already queued are still applied.
func (d *Dispatcher) Close() {
	d.queue.Shutdown()
}
