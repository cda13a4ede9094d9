// Package widget is the customer-side client embedded on a website. It
// resumes the visitor's conversation when one is stored, otherwise creates
// one, and keeps its history live over a customer socket.
package widget

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
	"chat-app-client/internal/registry/message"
	"chat-app-client/internal/sessionstore"
	"chat-app-client/internal/transport"
)

var (
	ErrNotStarted = errors.New("widget: session not started")
	// ErrStopped is returned by Start once Stop has been called.
	ErrStopped = errors.New("widget: session stopped")
)

// Config is the embed-time configuration.
type Config struct {
	BaseURL string
	Source  string
}

type API interface {
	message.Lister
	CreateConversation(ctx context.Context, source string) (dto.CreateConversationResponse, error)
	SendMessage(ctx context.Context, req dto.SendMessageRequest) (model.Message, error)
}

type Socket interface {
	Connect(ctx context.Context, token string) error
	Close() error
	OnOpen(h events.Handler[transport.OpenEvent]) func()
	OnMessage(h events.Handler[transport.MessageEvent]) func()
}

// SocketFactory opens a customer socket bound to a conversation.
type SocketFactory func(convUUID string) (Socket, error)

type Options struct {
	PageSize int
	Logger   *zap.Logger
	Now      func() time.Time
}

type Session struct {
	cfg       Config
	api       API
	store     sessionstore.Store
	newSocket SocketFactory
	log       *zap.Logger

	msgs       *message.Registry
	dispatcher *dispatch.Dispatcher

	// startMu serializes Start and Stop.
	startMu sync.Mutex

	mu       sync.Mutex
	convUUID string
	socket   Socket
	cancel   context.CancelFunc
	unsubs   []func()
	stopped  bool
	wg       sync.WaitGroup
}

func New(cfg Config, api API, store sessionstore.Store, newSocket SocketFactory, opts Options) (*Session, error) {
	if strings.TrimSpace(cfg.Source) == "" {
		return nil, errors.New("widget: source is required")
	}
	if store == nil {
		store = sessionstore.NewMemoryStore()
	}
	log := logging.OrComponent(opts.Logger, "widget").With(zap.String("source", cfg.Source))

	msgs := message.New(api, message.Options{PageSize: opts.PageSize, Logger: log, Now: opts.Now})
	d, err := dispatch.New(dispatch.Options{
		Role:     model.SenderCustomer,
		Messages: msgs,
		Logger:   log,
		Now:      opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("widget: %w", err)
	}

	return &Session{
		cfg:        cfg,
		api:        api,
		store:      store,
		newSocket:  newSocket,
		log:        log,
		msgs:       msgs,
		dispatcher: d,
	}, nil
}

// Start resolves the conversation, loads its history, and connects the
// customer socket. A stored conversation UUID is reused without calling
// the backend to create one. Start is a no-op once started. If the socket
// cannot connect and will not retry, everything is rolled back and Start may
// be called again. A stopped session cannot be restarted.
func (s *Session) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	stopped, started := s.stopped, s.socket != nil
	s.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if started {
		return nil
	}

	convUUID, err := s.resolveConversation(ctx)
	if err != nil {
		return err
	}
	s.dispatcher.SetActive(convUUID)

	if err := s.msgs.Fetch(ctx, convUUID); err != nil {
		s.log.Warn("initial history fetch failed", zap.String("conversation_uuid", convUUID), zap.Error(err))
	}

	sock, err := s.newSocket(convUUID)
	if err != nil {
		return fmt.Errorf("widget: socket: %w", err)
	}
	unsubs := []func(){
		sock.OnMessage(s.dispatcher.OnFrame),
		sock.OnOpen(func(e transport.OpenEvent) error {
			if e.Reconnect {
				s.msgs.TriggerRefresh(convUUID)
			}
			return nil
		}),
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.msgs.Run(runCtx)
	}()

	if err := sock.Connect(ctx, ""); err != nil {
		if !errors.Is(err, transport.ErrReconnectPending) {
			for _, unsub := range unsubs {
				unsub()
			}
			_ = sock.Close()
			cancel()
			s.wg.Wait()
			return fmt.Errorf("widget: connect: %w", err)
		}
		s.log.Warn("socket not connected yet, retrying", zap.String("conversation_uuid", convUUID), zap.Error(err))
	}

	s.mu.Lock()
	s.convUUID = convUUID
	s.socket = sock
	s.cancel = cancel
	s.unsubs = unsubs
	s.mu.Unlock()
	return nil
}

func (s *Session) resolveConversation(ctx context.Context) (string, error) {
	key := sessionstore.Key(s.cfg.BaseURL, s.cfg.Source)

	stored, err := s.store.Get(ctx, key)
	switch {
	case err == nil && stored != "":
		s.log.Info("resuming conversation", zap.String("conversation_uuid", stored))
		return stored, nil
	case err != nil && !errors.Is(err, sessionstore.ErrNotFound):
		s.log.Warn("session store read failed", zap.Error(err))
	}

	created, err := s.api.CreateConversation(ctx, s.cfg.Source)
	if err != nil {
		return "", fmt.Errorf("widget: create conversation: %w", err)
	}
	if err := s.store.Set(ctx, key, created.UUID); err != nil {
		s.log.Warn("session store write failed", zap.String("conversation_uuid", created.UUID), zap.Error(err))
	}
	s.log.Info("created conversation", zap.String("conversation_uuid", created.UUID), zap.Int64("conversation_id", created.ID))
	return created.UUID, nil
}

// ConversationUUID returns the resolved conversation, or "" before Start.
func (s *Session) ConversationUUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convUUID
}

// Messages returns the conversation history, oldest first.
func (s *Session) Messages() []model.Message {
	convUUID := s.ConversationUUID()
	if convUUID == "" {
		return nil
	}
	return s.msgs.Messages(convUUID)
}

// Registry exposes the message registry for change subscriptions.
func (s *Session) Registry() *message.Registry {
	return s.msgs
}

func (s *Session) LoadMore(ctx context.Context) error {
	convUUID := s.ConversationUUID()
	if convUUID == "" {
		return ErrNotStarted
	}
	return s.msgs.LoadMore(ctx, convUUID)
}

// Send posts a customer message with the same optimistic flow as the desk.
func (s *Session) Send(ctx context.Context, text string) (model.Message, error) {
	convUUID := s.ConversationUUID()
	if convUUID == "" {
		return model.Message{}, ErrNotStarted
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, errors.New("widget: message is empty")
	}

	pending := s.msgs.AddPending(convUUID, text, model.SenderCustomer)
	sent, err := s.api.SendMessage(ctx, dto.SendMessageRequest{
		ConversationUUID: convUUID,
		Content:          text,
		Sender:           model.SenderCustomer,
		ContentType:      model.ContentText,
	})
	if err != nil {
		s.msgs.MarkFailed(convUUID, pending.LocalID, err)
		return pending, err
	}
	s.msgs.Confirm(convUUID, pending.LocalID, sent)
	return sent, nil
}

// Forget drops the stored conversation so the next Start creates a new one.
func (s *Session) Forget(ctx context.Context) error {
	return s.store.Delete(ctx, sessionstore.Key(s.cfg.BaseURL, s.cfg.Source))
}

// Stop closes the socket and the refresh loop. A stopped session cannot be
// started again.
func (s *Session) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	sock := s.socket
	cancel := s.cancel
	unsubs := s.unsubs
	s.cancel = nil
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if sock != nil {
		if err := sock.Close(); err != nil {
			s.log.Warn("socket close failed", zap.Error(err))
		}
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
