package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-app-client/internal/apiclient"
	"chat-app-client/internal/dto"
	"chat-app-client/internal/model"
	"chat-app-client/internal/registry/conversation"
	"chat-app-client/internal/registry/message"
	"chat-app-client/internal/transport"
)

type emptyConversations struct{}

func (emptyConversations) ListConversations(context.Context, apiclient.ConversationQuery) (dto.Page[model.Conversation], error) {
	return dto.Page[model.Conversation]{}, nil
}

type emptyMessages struct{}

func (emptyMessages) ListMessages(context.Context, apiclient.MessageQuery) (dto.Page[model.Message], error) {
	return dto.Page[model.Message]{}, nil
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newDeskDispatcher(t *testing.T) (*Dispatcher, *conversation.Registry, *message.Registry) {
	t.Helper()
	convs := conversation.New(emptyConversations{}, conversation.Options{})
	msgs := message.New(emptyMessages{}, message.Options{})
	d, err := New(Options{
		Role:          model.SenderAgent,
		Conversations: convs,
		Messages:      msgs,
		Now:           func() time.Time { return testNow },
	})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, convs, msgs
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{Role: "bot", Messages: message.New(emptyMessages{}, message.Options{})})
	assert.Error(t, err)

	_, err = New(Options{Role: model.SenderAgent})
	assert.Error(t, err)
}

func TestNewMessageForActiveConversation(t *testing.T) {
	d, convs, msgs := newDeskDispatcher(t)
	convs.Add(model.Conversation{ID: 1, UUID: "X"})
	d.SetActive("X")

	frame := []byte(`{"type":"new_message","data":{"id":7,"conv_uuid":"X","content":"hi"}}`)
	require.NoError(t, d.Handle(frame))
	require.NoError(t, d.Handle(frame))

	got := msgs.Messages("X")
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, "hi", got[0].Content)
	assert.Equal(t, model.SenderCustomer, got[0].Sender)

	c, ok := convs.Get("X")
	require.True(t, ok)
	assert.Equal(t, "hi", c.LastMessage)
	assert.Equal(t, testNow, c.LastMessageAt)
}

func TestNewMessageForOtherConversation(t *testing.T) {
	d, convs, msgs := newDeskDispatcher(t)
	convs.Add(model.Conversation{ID: 1, UUID: "X"})
	convs.Add(model.Conversation{ID: 2, UUID: "Y"})
	d.SetActive("Y")

	require.NoError(t, d.Handle([]byte(`{"type":"new_message","data":{"id":7,"conv_uuid":"X","content":"hi"}}`)))

	assert.Empty(t, msgs.Messages("X"))
	assert.Empty(t, msgs.Messages("Y"))
	c, _ := convs.Get("X")
	assert.Equal(t, "hi", c.LastMessage)
	y, _ := convs.Get("Y")
	assert.Empty(t, y.LastMessage)
}

func TestSenderAttribution(t *testing.T) {
	msgs := message.New(emptyMessages{}, message.Options{})
	d, err := New(Options{Role: model.SenderCustomer, Messages: msgs})
	require.NoError(t, err)
	defer d.Close()
	d.SetActive("W")

	require.NoError(t, d.Handle([]byte(`{"type":"new_message","data":{"id":1,"conv_uuid":"W","content":"welcome"}}`)))
	require.NoError(t, d.Handle([]byte(`{"type":"new_message","data":{"id":2,"conv_uuid":"W","content":"echo","sender_type":"customer"}}`)))

	got := msgs.Messages("W")
	require.Len(t, got, 2)
	assert.Equal(t, model.SenderAgent, got[0].Sender)
	assert.Equal(t, model.SenderCustomer, got[1].Sender)
}

func TestNewConversationPrepends(t *testing.T) {
	d, convs, _ := newDeskDispatcher(t)
	convs.Add(model.Conversation{ID: 1, UUID: "old"})

	require.NoError(t, d.Handle([]byte(`{"type":"new_conversation","data":{"id":2,"uuid":"new","status":"open"}}`)))

	got := convs.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].UUID)
	assert.Equal(t, model.ConversationStatusOpen, got[0].Status)
}

func TestMalformedAndUnknownFrames(t *testing.T) {
	d, convs, _ := newDeskDispatcher(t)

	assert.ErrorIs(t, d.Handle([]byte(`not json`)), ErrMalformedEnvelope)
	assert.ErrorIs(t, d.Handle([]byte(`{"type":"new_message","data":{"id":1}}`)), ErrMalformedEnvelope)
	assert.ErrorIs(t, d.Handle([]byte(`{"type":"new_conversation","data":"oops"}`)), ErrMalformedEnvelope)
	assert.NoError(t, d.Handle([]byte(`{"type":"typing","data":{}}`)))
	assert.Empty(t, convs.Snapshot())
}

type recordingSink struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingSink) Add(_ string, m model.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, m.ID)
	return true
}

func (r *recordingSink) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

func TestOnFramePreservesOrder(t *testing.T) {
	sink := &recordingSink{}
	d, err := New(Options{Role: model.SenderAgent, Messages: sink})
	require.NoError(t, err)
	d.SetActive("X")

	want := make([]int64, 0, 20)
	for i := int64(1); i <= 20; i++ {
		want = append(want, i)
		frame := fmt.Sprintf(`{"type":"new_message","data":{"id":%d,"conv_uuid":"X","content":"m"}}`, i)
		require.NoError(t, d.OnFrame(transport.MessageEvent{SessionID: "s", Data: []byte(frame)}))
	}
	d.Close()

	assert.Equal(t, want, sink.snapshot())
}
