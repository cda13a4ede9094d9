package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-app-client/internal/desk"
	"chat-app-client/internal/model"
)

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "abc", "0", "-3"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestDeliverySuffix(t *testing.T) {
	assert.Equal(t, "", deliverySuffix(model.Message{Delivery: model.DeliverySent}))
	assert.Equal(t, " (sending)", deliverySuffix(model.Message{Delivery: model.DeliveryPending}))
	assert.Equal(t, " (failed: boom)", deliverySuffix(model.Message{Delivery: model.DeliveryFailed, DeliveryError: "boom"}))
}

func TestReadLinesStopsAtEOF(t *testing.T) {
	ch := readLines(context.Background(), strings.NewReader("one\ntwo\n"))
	var got []string
	for line := range ch {
		got = append(got, line)
	}
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestPrintMessages(t *testing.T) {
	var buf bytes.Buffer
	printMessages(&buf, []model.Message{{
		Sender:    model.SenderCustomer,
		Content:   "hi",
		CreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Delivery:  model.DeliveryPending,
	}})
	assert.Contains(t, buf.String(), "customer")
	assert.Contains(t, buf.String(), "hi (sending)")
}

func TestHandleDeskLineRejectsUnknownCommand(t *testing.T) {
	var buf bytes.Buffer
	err := handleDeskLine(context.Background(), &buf, &desk.Session{}, "/bogus")
	assert.ErrorContains(t, err, "unknown command")

	err = handleDeskLine(context.Background(), &buf, &desk.Session{}, "/open")
	assert.ErrorContains(t, err, "usage")

	assert.NoError(t, handleDeskLine(context.Background(), &buf, &desk.Session{}, "   "))
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"conversations", "close", "reopen", "messages", "send", "watch", "widget", "sources", "config", "agents", "whoami", "sessions"} {
		assert.True(t, names[want], want)
	}
}
