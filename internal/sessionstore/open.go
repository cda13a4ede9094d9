package sessionstore

import (
	"context"
	"fmt"

	"chat-app-client/internal/config"
	"chat-app-client/internal/database"
)

// Open builds the backend selected by cfg.Store. The returned close function
// releases backend connections and is never nil.
func Open(ctx context.Context, cfg config.WidgetConfig) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(), noop, nil
	case "redis":
		client := NewRedisClient(cfg.RedisURL, cfg.RedisPass)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("sessionstore: redis ping: %w", err)
		}
		return NewRedisStore(client, cfg.RedisTTL), client.Close, nil
	case "dynamodb":
		db, err := database.NewDynamoDBClient(ctx, database.SettingsFromEnv())
		if err != nil {
			return nil, noop, fmt.Errorf("sessionstore: %w", err)
		}
		table := cfg.DynamoTable
		if table == "" {
			table = DefaultTable
		}
		if err := db.EnsureTable(ctx, table, keyAttribute); err != nil {
			return nil, noop, fmt.Errorf("sessionstore: %w", err)
		}
		return NewDynamoStore(db, table), noop, nil
	default:
		return nil, noop, fmt.Errorf("sessionstore: unknown backend %q", cfg.Store)
	}
}
