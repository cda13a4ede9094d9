package widget

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-app-client/internal/apiclient"
	"chat-app-client/internal/dto"
	"chat-app-client/internal/events"
	"chat-app-client/internal/model"
	"chat-app-client/internal/sessionstore"
	"chat-app-client/internal/transport"
)

const baseURL = "https://chat.example.com/api"

type memoryAPI struct {
	mu       sync.Mutex
	creates  []string
	createID string
	history  map[string][]model.Message
	sent     []dto.SendMessageRequest
	sendErr  error
}

func newMemoryAPI() *memoryAPI {
	return &memoryAPI{createID: "new-uuid", history: make(map[string][]model.Message)}
}

func (m *memoryAPI) CreateConversation(_ context.Context, source string) (dto.CreateConversationResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates = append(m.creates, source)
	return dto.CreateConversationResponse{ID: 1, UUID: m.createID}, nil
}

func (m *memoryAPI) ListMessages(_ context.Context, q apiclient.MessageQuery) (dto.Page[model.Message], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.Page > 1 {
		return dto.Page[model.Message]{}, nil
	}
	return dto.Page[model.Message]{Items: append([]model.Message(nil), m.history[q.ConversationUUID]...)}, nil
}

func (m *memoryAPI) SendMessage(_ context.Context, req dto.SendMessageRequest) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, req)
	if m.sendErr != nil {
		return model.Message{}, m.sendErr
	}
	return model.Message{ID: 900, ConversationUUID: req.ConversationUUID, Content: req.Content, Sender: req.Sender}, nil
}

type fakeSocket struct {
	convUUID   string
	message    *events.Bus[transport.MessageEvent]
	open       *events.Bus[transport.OpenEvent]
	connectErr error
	connects   int
	closes     int
}

func (f *fakeSocket) Connect(context.Context, string) error {
	f.connects++
	return f.connectErr
}

func (f *fakeSocket) Close() error {
	f.closes++
	return nil
}

func (f *fakeSocket) OnOpen(h events.Handler[transport.OpenEvent]) func() {
	return f.open.Subscribe(h)
}

func (f *fakeSocket) OnMessage(h events.Handler[transport.MessageEvent]) func() {
	return f.message.Subscribe(h)
}

func fakeFactory(sockets *[]*fakeSocket) SocketFactory {
	return failingFactory(sockets)
}

// failingFactory gives the n-th socket connectErrs[n] as its Connect result.
func failingFactory(sockets *[]*fakeSocket, connectErrs ...error) SocketFactory {
	return func(convUUID string) (Socket, error) {
		s := &fakeSocket{
			convUUID: convUUID,
			message:  events.NewBus[transport.MessageEvent]("message", nil),
			open:     events.NewBus[transport.OpenEvent]("open", nil),
		}
		if n := len(*sockets); n < len(connectErrs) {
			s.connectErr = connectErrs[n]
		}
		*sockets = append(*sockets, s)
		return s, nil
	}
}

func TestStartReusesStoredConversation(t *testing.T) {
	api := newMemoryAPI()
	api.history["abc-123"] = []model.Message{{ID: 1, Content: "earlier", Sender: model.SenderAgent}}
	store := sessionstore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), sessionstore.Key(baseURL, "web"), "abc-123"))

	var sockets []*fakeSocket
	s, err := New(Config{BaseURL: baseURL, Source: "web"}, api, store, fakeFactory(&sockets), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Empty(t, api.creates)
	assert.Equal(t, "abc-123", s.ConversationUUID())
	require.Len(t, sockets, 1)
	assert.Equal(t, "abc-123", sockets[0].convUUID)
	assert.Equal(t, 1, sockets[0].connects)
	require.Len(t, s.Messages(), 1)
	assert.Equal(t, "earlier", s.Messages()[0].Content)
}

func TestStartCreatesAndStoresConversation(t *testing.T) {
	api := newMemoryAPI()
	store := sessionstore.NewMemoryStore()

	var sockets []*fakeSocket
	s, err := New(Config{BaseURL: baseURL, Source: "web"}, api, store, fakeFactory(&sockets), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, []string{"web"}, api.creates)
	stored, err := store.Get(context.Background(), sessionstore.Key(baseURL, "web"))
	require.NoError(t, err)
	assert.Equal(t, "new-uuid", stored)
	assert.Equal(t, "new-uuid", s.ConversationUUID())

	require.NoError(t, s.Forget(context.Background()))
	_, err = store.Get(context.Background(), sessionstore.Key(baseURL, "web"))
	assert.ErrorIs(t, err, sessionstore.ErrNotFound)
}

func TestAgentPushAttributedToAgent(t *testing.T) {
	api := newMemoryAPI()
	var sockets []*fakeSocket
	s, err := New(Config{BaseURL: baseURL, Source: "web"}, api, nil, fakeFactory(&sockets), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	sockets[0].message.Publish(transport.MessageEvent{Data: []byte(`{"type":"new_message","data":{"id":3,"conv_uuid":"new-uuid","content":"How can I help?"}}`)})
	sockets[0].message.Publish(transport.MessageEvent{Data: []byte(`{"type":"new_message","data":{"id":4,"conv_uuid":"someone-else","content":"nope"}}`)})

	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	got := s.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, model.SenderAgent, got[0].Sender)
}

func TestSendBeforeStart(t *testing.T) {
	var sockets []*fakeSocket
	s, err := New(Config{BaseURL: baseURL, Source: "web"}, newMemoryAPI(), nil, fakeFactory(&sockets), Options{})
	require.NoError(t, err)

	_, err = s.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, s.LoadMore(context.Background()), ErrNotStarted)
	assert.Nil(t, s.Messages())
}

func TestSendOptimistic(t *testing.T) {
	api := newMemoryAPI()
	var sockets []*fakeSocket
	s, err := New(Config{BaseURL: baseURL, Source: "web"}, api, nil, fakeFactory(&sockets), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, err = s.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, api.sent, 1)
	assert.Equal(t, model.SenderCustomer, api.sent[0].Sender)
	assert.Equal(t, "new-uuid", api.sent[0].ConversationUUID)
	assert.Equal(t, []int64{900}, []int64{s.Messages()[0].ID})

	api.mu.Lock()
	api.sendErr = &apiclient.NetworkError{Status: 503, StatusText: "Service Unavailable"}
	api.mu.Unlock()

	_, err = s.Send(context.Background(), "again")
	var netErr *apiclient.NetworkError
	require.True(t, errors.As(err, &netErr))
	got := s.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, model.DeliveryFailed, got[1].Delivery)
}

func TestStartRollsBackWhenConnectFails(t *testing.T) {
	api := newMemoryAPI()
	store := sessionstore.NewMemoryStore()
	var sockets []*fakeSocket
	s, err := New(Config{BaseURL: baseURL, Source: "web"}, api, store, failingFactory(&sockets, errors.New("connection refused")), Options{})
	require.NoError(t, err)
	defer s.Stop()

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, s.ConversationUUID())
	require.Len(t, sockets, 1)
	assert.Equal(t, 1, sockets[0].closes)
	assert.Equal(t, 0, sockets[0].message.Len())
	assert.Equal(t, 0, sockets[0].open.Len())

	require.NoError(t, s.Start(context.Background()))
	require.Len(t, sockets, 2)
	assert.Equal(t, 1, sockets[1].connects)
	assert.Equal(t, "new-uuid", s.ConversationUUID())
	assert.Equal(t, []string{"web"}, api.creates)
}

func TestStartKeepsSessionWhileReconnectPending(t *testing.T) {
	var sockets []*fakeSocket
	pending := fmt.Errorf("%w: dial: 503 Service Unavailable", transport.ErrReconnectPending)
	s, err := New(Config{BaseURL: baseURL, Source: "web"}, newMemoryAPI(), nil, failingFactory(&sockets, pending), Options{})
	require.NoError(t, err)
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "new-uuid", s.ConversationUUID())
	assert.Equal(t, 0, sockets[0].closes)

	sockets[0].message.Publish(transport.MessageEvent{Data: []byte(`{"type":"new_message","data":{"id":9,"conv_uuid":"new-uuid","content":"back"}}`)})
	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestConcurrentStartCreatesOnce(t *testing.T) {
	api := newMemoryAPI()
	var sockets []*fakeSocket
	s, err := New(Config{BaseURL: baseURL, Source: "web"}, api, nil, fakeFactory(&sockets), Options{})
	require.NoError(t, err)
	defer s.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Start(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"web"}, api.creates)
	assert.Len(t, sockets, 1)
}

func TestStartAfterStop(t *testing.T) {
	var sockets []*fakeSocket
	s, err := New(Config{BaseURL: baseURL, Source: "web"}, newMemoryAPI(), nil, fakeFactory(&sockets), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	s.Stop()
	s.Stop()
	assert.Equal(t, 1, sockets[0].closes)
	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
	assert.Len(t, sockets, 1)
}

func TestNewRequiresSource(t *testing.T) {
	_, err := New(Config{BaseURL: baseURL}, newMemoryAPI(), nil, nil, Options{})
	assert.Error(t, err)
}

func TestCustomerSocketOverTransport(t *testing.T) {
	queries := make(chan url.Values, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		queries <- r.URL.Query()
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"new_message","data":{"id":8,"conv_uuid":"new-uuid","content":"hi there"}}`))
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	factory := func(convUUID string) (Socket, error) {
		return transport.New(transport.Options{
			URL:              "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
			ClientType:       model.SenderCustomer,
			ConversationUUID: convUUID,
		})
	}

	s, err := New(Config{BaseURL: baseURL, Source: "web"}, newMemoryAPI(), nil, factory, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case q := <-queries:
		assert.Equal(t, "customer", q.Get("client_type"))
		assert.Equal(t, "new-uuid", q.Get("conversation_uuid"))
		assert.NotEmpty(t, q.Get("session_id"))
	case <-time.After(2 * time.Second):
		t.Fatal("socket did not connect")
	}

	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.SenderAgent, s.Messages()[0].Sender)
}
