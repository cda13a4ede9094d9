// Package relay republishes inbound socket envelopes on Redis pub/sub so
// local tools can follow a desk session.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"chat-app-client/internal/logging"
	"chat-app-client/internal/transport"
)

const DefaultPrefix = "chat"

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Relay struct {
	client  publisher
	prefix  string
	timeout time.Duration
	log     *zap.Logger
}

func New(client publisher, prefix string, log *zap.Logger) *Relay {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Relay{
		client:  client,
		prefix:  prefix,
		timeout: 2 * time.Second,
		log:     logging.OrComponent(log, "relay"),
	}
}

// Channel returns the channel for a conversation, or the catch-all channel
// when convUUID is empty.
func (r *Relay) Channel(convUUID string) string {
	if convUUID == "" {
		return r.prefix + ":all"
	}
	return r.prefix + ":conversation:" + convUUID
}

func (r *Relay) Publish(ctx context.Context, convUUID string, payload []byte) error {
	if err := r.client.Publish(ctx, r.Channel(convUUID), string(payload)).Err(); err != nil {
		return fmt.Errorf("relay: redis publish: %w", err)
	}
	return nil
}

// OnFrame is a transport message listener. Frames are published to the
// catch-all channel and, when they name a conversation, to its channel too.
func (r *Relay) OnFrame(e transport.MessageEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.Publish(ctx, "", e.Data); err != nil {
		r.log.Warn("relay publish failed", zap.String("session_id", e.SessionID), zap.Error(err))
		return err
	}
	if conv := conversationOf(e.Data); conv != "" {
		if err := r.Publish(ctx, conv, e.Data); err != nil {
			r.log.Warn("relay publish failed", zap.String("conversation_uuid", conv), zap.Error(err))
			return err
		}
	}
	return nil
}

func conversationOf(frame []byte) string {
	var env struct {
		Data struct {
			ConvUUID string `json:"conv_uuid"`
			UUID     string `json:"uuid"`
		} `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return ""
	}
	if env.Data.ConvUUID != "" {
		return env.Data.ConvUUID
	}
	return env.Data.UUID
}
