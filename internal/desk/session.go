// Package desk composes the agent-side client: conversation list, active
// conversation history, and the agent socket.
package desk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-app-client/internal/apiclient"
	"chat-app-client/internal/dispatch"
	"chat-app-client/internal/dto"
	"chat-app-client/internal/events"
	"chat-app-client/internal/logging"
	"chat-app-client/internal/model"
	"chat-app-client/internal/registry/conversation"
	"chat-app-client/internal/registry/message"
	"chat-app-client/internal/transport"
)

var (
	ErrNoActiveConversation = errors.New("desk: no active conversation")
	// ErrStopped is returned by Start once Stop has been called.
	ErrStopped = errors.New("desk: session stopped")
)

// API is the REST surface the desk uses. *apiclient.Client satisfies it.
type API interface {
	conversation.Lister
	message.Lister
	SendMessage(ctx context.Context, req dto.SendMessageRequest) (model.Message, error)
	CloseConversation(ctx context.Context, id int64) error
	ReopenConversation(ctx context.Context, id int64) error
}

// Socket is the transport surface the desk uses. *transport.Client satisfies it.
type Socket interface {
	Connect(ctx context.Context, token string) error
	Close() error
	OnOpen(h events.Handler[transport.OpenEvent]) func()
	OnMessage(h events.Handler[transport.MessageEvent]) func()
}

type Options struct {
	Token                string
	Status               model.ConversationStatus
	ConversationPageSize int
	MessagePageSize      int
	Logger               *zap.Logger
	Now                  func() time.Time
}

type Session struct {
	api    API
	socket Socket
	token  string
	log    *zap.Logger

	convs      *conversation.Registry
	msgs       *message.Registry
	dispatcher *dispatch.Dispatcher

	// startMu serializes Start and Stop.
	startMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	unsubs  []func()
	stopped bool
	wg      sync.WaitGroup
}

func New(api API, socket Socket, opts Options) (*Session, error) {
	log := logging.OrComponent(opts.Logger, "desk")

	convs := conversation.New(api, conversation.Options{
		PageSize: opts.ConversationPageSize,
		Status:   opts.Status,
		Logger:   log,
	})
	msgs := message.New(api, message.Options{
		PageSize: opts.MessagePageSize,
		Logger:   log,
		Now:      opts.Now,
	})
	d, err := dispatch.New(dispatch.Options{
		Role:          model.SenderAgent,
		Conversations: convs,
		Messages:      msgs,
		Logger:        log,
		Now:           opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("desk: %w", err)
	}

	return &Session{
		api:        api,
		socket:     socket,
		token:      opts.Token,
		log:        log,
		convs:      convs,
		msgs:       msgs,
		dispatcher: d,
	}, nil
}

func (s *Session) Conversations() *conversation.Registry { return s.convs }

func (s *Session) Messages() *message.Registry { return s.msgs }

// Start loads the conversation list, starts the refresh loops, and connects
// the agent socket. A failed initial fetch is recorded in the registry and
// does not stop the session. When the socket cannot connect and will not
// retry, the loops and listeners are torn down and Start may be called again.
func (s *Session) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	stopped, started := s.stopped, s.cancel != nil
	s.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if started {
		return nil
	}

	if err := s.convs.Fetch(ctx); err != nil {
		s.log.Warn("initial conversation fetch failed", zap.Error(err))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		_ = s.convs.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		_ = s.msgs.Run(runCtx)
	}()

	unsubs := []func(){
		s.socket.OnMessage(s.dispatcher.OnFrame),
		s.socket.OnOpen(s.onOpen),
	}

	if err := s.socket.Connect(ctx, s.token); err != nil {
		if !errors.Is(err, transport.ErrReconnectPending) {
			for _, unsub := range unsubs {
				unsub()
			}
			cancel()
			s.wg.Wait()
			return fmt.Errorf("desk: connect: %w", err)
		}
		s.log.Warn("socket not connected yet, retrying", zap.Error(err))
	}

	s.mu.Lock()
	s.cancel = cancel
	s.unsubs = unsubs
	s.mu.Unlock()
	return nil
}

// onOpen resyncs after a reconnect, since pushes sent while offline are lost.
func (s *Session) onOpen(e transport.OpenEvent) error {
	if !e.Reconnect {
		return nil
	}
	s.convs.TriggerRefresh()
	if active := s.dispatcher.Active(); active != "" {
		s.msgs.TriggerRefresh(active)
	}
	return nil
}

// Open makes convUUID the active conversation and loads its first page.
func (s *Session) Open(ctx context.Context, convUUID string) error {
	s.dispatcher.SetActive(convUUID)
	return s.msgs.Fetch(ctx, convUUID)
}

// LoadMore loads older history of the active conversation.
func (s *Session) LoadMore(ctx context.Context) error {
	active := s.dispatcher.Active()
	if active == "" {
		return ErrNoActiveConversation
	}
	return s.msgs.LoadMore(ctx, active)
}

func (s *Session) Active() string {
	return s.dispatcher.Active()
}

// Send appends an optimistic message to the active conversation and posts
// it. On success the pending entry is replaced by the server copy; on
// failure it stays, marked failed, and the error is returned.
func (s *Session) Send(ctx context.Context, text string) (model.Message, error) {
	active := s.dispatcher.Active()
	if active == "" {
		return model.Message{}, ErrNoActiveConversation
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, errors.New("desk: message is empty")
	}

	pending := s.msgs.AddPending(active, text, model.SenderAgent)

	req := dto.SendMessageRequest{
		ConversationUUID: active,
		Content:          text,
		Sender:           model.SenderAgent,
		ContentType:      model.ContentText,
	}
	if c, ok := s.convs.Get(active); ok {
		req.ConversationID = c.ID
	}

	sent, err := s.api.SendMessage(ctx, req)
	if err != nil {
		s.msgs.MarkFailed(active, pending.LocalID, err)
		return pending, err
	}

	s.msgs.Confirm(active, pending.LocalID, sent)
	at := sent.CreatedAt
	if at.IsZero() {
		at = pending.CreatedAt
	}
	s.convs.UpdateLastMessage(active, sent.Content, at)
	return sent, nil
}

func (s *Session) CloseConversation(ctx context.Context, id int64) error {
	if err := s.api.CloseConversation(ctx, id); err != nil {
		return err
	}
	s.convs.TriggerRefresh()
	return nil
}

func (s *Session) ReopenConversation(ctx context.Context, id int64) error {
	if err := s.api.ReopenConversation(ctx, id); err != nil {
		return err
	}
	s.convs.TriggerRefresh()
	return nil
}

// Stop closes the socket and stops the background loops. A stopped session
// cannot be started again.
func (s *Session) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.cancel = nil
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if err := s.socket.Close(); err != nil {
		s.log.Warn("socket close failed", zap.Error(err))
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.dispatcher.Close()
}

var (
	_ API    = (*apiclient.Client)(nil)
	_ Socket = (*transport.Client)(nil)
)
