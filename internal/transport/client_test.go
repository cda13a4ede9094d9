package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-app-client/internal/model"
	"chat-app-client/internal/reconnect"
)

type testServer struct {
	*httptest.Server

	mu      sync.Mutex
	queries []url.Values
	conns   []*websocket.Conn
	frames  chan string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{frames: make(chan string, 16)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.queries = append(ts.queries, r.URL.Query())
		ts.conns = append(ts.conns, ws)
		ts.mu.Unlock()

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			ts.frames <- string(data)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) connCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.conns)
}

func (ts *testServer) lastConn() *websocket.Conn {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.conns[len(ts.conns)-1]
}

func (ts *testServer) query(i int) url.Values {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.queries[i]
}

func newClient(t *testing.T, ts *testServer, mutate func(*Options)) *Client {
	t.Helper()
	opts := Options{URL: ts.wsURL(), ClientType: model.SenderAgent}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{ClientType: model.SenderAgent})
	assert.Error(t, err)

	_, err = New(Options{URL: "ws://localhost/ws", ClientType: "robot"})
	assert.Error(t, err)
}

func TestConnectSendsQueryParameters(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, ts, func(o *Options) {
		o.ClientType = model.SenderCustomer
		o.ConversationUUID = "abc-123"
	})

	require.NoError(t, c.Connect(context.Background(), "tok"))
	require.Eventually(t, func() bool { return ts.connCount() == 1 }, time.Second, 10*time.Millisecond)

	q := ts.query(0)
	assert.Equal(t, "customer", q.Get("client_type"))
	assert.Equal(t, "tok", q.Get("token"))
	assert.Equal(t, "abc-123", q.Get("conversation_uuid"))
	assert.Equal(t, c.SessionID(), q.Get("session_id"))
	assert.NotEmpty(t, q.Get("session_id"))
	assert.Equal(t, StateOpen, c.State())
}

func TestConnectIsIdempotentWhileOpen(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, ts, nil)

	require.NoError(t, c.Connect(context.Background(), "tok"))
	require.NoError(t, c.Connect(context.Background(), "tok"))

	require.Eventually(t, func() bool { return ts.connCount() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, ts.connCount())
}

func TestSendBeforeOpenIsDropped(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, ts, nil)

	err := c.Send(map[string]string{"type": "ping"})
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, c.Connect(context.Background(), ""))
	require.NoError(t, c.Send("hello"))

	select {
	case got := <-ts.frames:
		assert.Equal(t, "hello", got)
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}

	select {
	case extra := <-ts.frames:
		t.Fatalf("unexpected frame %q", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendEncodesJSON(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, ts, nil)
	require.NoError(t, c.Connect(context.Background(), ""))

	require.NoError(t, c.Send(struct {
		Type string `json:"type"`
	}{Type: "typing"}))

	select {
	case got := <-ts.frames:
		assert.JSONEq(t, `{"type":"typing"}`, got)
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestMessageListenersIsolated(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, ts, nil)

	var mu sync.Mutex
	var order []string
	c.OnMessage(func(MessageEvent) error { panic("boom") })
	c.OnMessage(func(e MessageEvent) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "second:"+string(e.Data))
		return nil
	})
	unsub := c.OnMessage(func(MessageEvent) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "removed")
		return nil
	})
	unsub()

	require.NoError(t, c.Connect(context.Background(), ""))
	require.Eventually(t, func() bool { return ts.connCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, ts.lastConn().WriteMessage(websocket.TextMessage, []byte(`{"type":"x"}`)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 1
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{`second:{"type":"x"}`}, order)
	mu.Unlock()
}

func TestIntentionalCloseDoesNotReconnect(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, ts, func(o *Options) { o.Policy = reconnect.FixedInterval(10 * time.Millisecond) })

	closed := make(chan CloseEvent, 1)
	c.OnClose(func(e CloseEvent) error { closed <- e; return nil })

	require.NoError(t, c.Connect(context.Background(), ""))
	require.NoError(t, c.Close())

	select {
	case e := <-closed:
		assert.True(t, e.Intentional)
	case <-time.After(3 * time.Second):
		t.Fatal("close event not published")
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, ts.connCount())
	assert.Equal(t, StateClosed, c.State())
	assert.ErrorIs(t, c.Send("late"), ErrNotOpen)
}

func TestServerCloseTriggersReconnect(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, ts, func(o *Options) { o.Policy = reconnect.FixedInterval(10 * time.Millisecond) })

	opens := make(chan OpenEvent, 4)
	c.OnOpen(func(e OpenEvent) error { opens <- e; return nil })
	closes := make(chan CloseEvent, 4)
	c.OnClose(func(e CloseEvent) error { closes <- e; return nil })

	require.NoError(t, c.Connect(context.Background(), "tok"))
	first := <-opens
	assert.False(t, first.Reconnect)

	require.Eventually(t, func() bool { return ts.connCount() == 1 }, time.Second, 10*time.Millisecond)
	_ = ts.lastConn().Close()

	select {
	case e := <-closes:
		assert.False(t, e.Intentional)
		assert.Equal(t, websocket.CloseAbnormalClosure, e.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("close event not published")
	}

	select {
	case e := <-opens:
		assert.True(t, e.Reconnect)
		assert.NotEqual(t, first.SessionID, e.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not reconnect")
	}

	require.Eventually(t, func() bool { return ts.connCount() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "tok", ts.query(1).Get("token"))
}

func TestDisabledPolicyStaysClosed(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, ts, nil)

	closes := make(chan CloseEvent, 1)
	c.OnClose(func(e CloseEvent) error { closes <- e; return nil })

	require.NoError(t, c.Connect(context.Background(), ""))
	require.Eventually(t, func() bool { return ts.connCount() == 1 }, time.Second, 10*time.Millisecond)
	_ = ts.lastConn().Close()

	select {
	case <-closes:
	case <-time.After(2 * time.Second):
		t.Fatal("close event not published")
	}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, ts.connCount())
	assert.Equal(t, StateClosed, c.State())
}

func TestDialFailurePublishesError(t *testing.T) {
	c, err := New(Options{URL: "ws://127.0.0.1:1/ws", ClientType: model.SenderAgent})
	require.NoError(t, err)

	errs := make(chan ErrorEvent, 1)
	c.OnError(func(e ErrorEvent) error { errs <- e; return nil })

	err = c.Connect(context.Background(), "")
	require.Error(t, err)
	select {
	case e := <-errs:
		assert.Error(t, e.Err)
	default:
		t.Fatal("error event not published")
	}
	assert.Equal(t, StateClosed, c.State())
}

func TestFirstDialFailureRetriedByPolicy(t *testing.T) {
	var hits atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c, err := New(Options{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		ClientType: model.SenderCustomer,
		Policy:     reconnect.FixedInterval(50 * time.Millisecond),
	})
	require.NoError(t, err)
	defer c.Close()

	opens := make(chan OpenEvent, 1)
	c.OnOpen(func(e OpenEvent) error { opens <- e; return nil })

	err = c.Connect(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReconnectPending)
	assert.Contains(t, err.Error(), "503")

	select {
	case e := <-opens:
		assert.True(t, e.Reconnect)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not connect after the first dial failed")
	}
	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, int32(2), hits.Load())
}

func TestFirstDialFailureWithoutPolicy(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), ClientType: model.SenderAgent})
	require.NoError(t, err)

	err = c.Connect(context.Background(), "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReconnectPending)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, StateClosed, c.State())
}

func TestCloseDuringFirstDialRetryStopsIt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Options{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		ClientType: model.SenderAgent,
		Policy:     reconnect.FixedInterval(30 * time.Millisecond),
	})
	require.NoError(t, err)

	require.ErrorIs(t, c.Connect(context.Background(), ""), ErrReconnectPending)
	require.Eventually(t, func() bool { return hits.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	after := hits.Load()
	time.Sleep(150 * time.Millisecond)
	assert.LessOrEqual(t, hits.Load(), after+1)
	assert.Equal(t, StateClosed, c.State())
}

func TestConnectWaitsForClosingSocket(t *testing.T) {
	var (
		upgrades    atomic.Int32
		firstClosed atomic.Bool
	)
	release := make(chan struct{})
	secondSawClosed := make(chan bool, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := upgrades.Add(1)
		switch n {
		case 1:
			// Hold the close handshake so the client stays in StateClosing.
			<-release
		case 2:
			secondSawClosed <- firstClosed.Load()
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				_ = ws.Close()
				return
			}
		}
	}))
	defer srv.Close()

	c, err := New(Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), ClientType: model.SenderAgent})
	require.NoError(t, err)
	defer c.Close()

	c.OnClose(func(e CloseEvent) error {
		if upgrades.Load() == 1 {
			firstClosed.Store(true)
		}
		return nil
	})

	require.NoError(t, c.Connect(context.Background(), ""))
	require.Eventually(t, func() bool { return upgrades.Load() == 1 }, time.Second, 5*time.Millisecond)

	closeDone := make(chan struct{})
	go func() {
		_ = c.Close()
		close(closeDone)
	}()
	require.Eventually(t, func() bool { return c.State() == StateClosing }, time.Second, time.Millisecond)

	connectDone := make(chan error, 1)
	go func() { connectDone <- c.Connect(context.Background(), "") }()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), upgrades.Load())
	select {
	case <-connectDone:
		t.Fatal("connect returned while the previous socket was still closing")
	default:
	}

	close(release)
	<-closeDone
	require.NoError(t, <-connectDone)

	select {
	case sawClosed := <-secondSawClosed:
		assert.True(t, sawClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("second connection not opened")
	}
	assert.Equal(t, int32(2), upgrades.Load())
	assert.Equal(t, StateOpen, c.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "state(42)", State(42).String())
}
