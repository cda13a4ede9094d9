package dto

import (
	"encoding/json"
	"testing"
	"time"

	"chat-app-client/internal/model"
)

func TestMessagePushFallbackSender(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	var push MessagePush
	if err := json.Unmarshal([]byte(`{"conv_uuid":"abc","content":"hi"}`), &push); err != nil {
		t.Fatalf("decode: %v", err)
	}

	msg := push.ToMessage(model.SenderCustomer, now)
	if msg.Sender != model.SenderCustomer {
		t.Fatalf("expected fallback sender, got %q", msg.Sender)
	}
	if msg.ContentType != model.ContentText {
		t.Fatalf("expected text content type, got %q", msg.ContentType)
	}
	if msg.ID != now.UnixMilli() {
		t.Fatalf("expected synthesized id, got %d", msg.ID)
	}
	if !msg.CreatedAt.Equal(now) {
		t.Fatalf("expected created at now, got %v", msg.CreatedAt)
	}
}

func TestMessagePushExplicitSender(t *testing.T) {
	push := MessagePush{ID: 9, ConversationUUID: "abc", Content: "hello", Sender: model.SenderAgent}
	msg := push.ToMessage(model.SenderCustomer, time.Now())
	if msg.Sender != model.SenderAgent {
		t.Fatalf("explicit sender must win, got %q", msg.Sender)
	}
	if msg.ID != 9 {
		t.Fatalf("expected server id, got %d", msg.ID)
	}
}

func TestEnvelopeDecode(t *testing.T) {
	var env Envelope[Page[model.Conversation]]
	body := `{"code":200,"message":"ok","data":{"items":[{"id":1,"uuid":"u1","status":"open"}],"total":1,"page":1,"page_size":20}}`
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Code != CodeOK || len(env.Data.Items) != 1 || env.Data.Items[0].Status != model.ConversationStatusOpen {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
