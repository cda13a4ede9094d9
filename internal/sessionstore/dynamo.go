package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-app-client/internal/database"
)

const (
	DefaultTable = "WidgetSessions"
	keyAttribute = "key"
)

// itemStore is satisfied by *database.DynamoDBClient.
type itemStore interface {
	GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue, out interface{}) error
	PutItem(ctx context.Context, tableName string, item interface{}) error
	DeleteItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) error
	ScanAll(ctx context.Context, tableName string, pageSize int32, out interface{}) error
}

type sessionItem struct {
	Key       string `dynamodbav:"key"`
	Value     string `dynamodbav:"value"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

type DynamoStore struct {
	db    itemStore
	table string
	now   func() time.Time
}

func NewDynamoStore(db itemStore, table string) *DynamoStore {
	if table == "" {
		table = DefaultTable
	}
	return &DynamoStore{db: db, table: table, now: time.Now}
}

func (s *DynamoStore) Get(ctx context.Context, key string) (string, error) {
	var item sessionItem
	err := s.db.GetItem(ctx, s.table, database.StringKey(keyAttribute, key), &item)
	if errors.Is(err, database.ErrItemNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sessionstore: dynamodb get: %w", err)
	}
	if item.Value == "" {
		return "", ErrNotFound
	}
	return item.Value, nil
}

func (s *DynamoStore) Set(ctx context.Context, key, value string) error {
	item := sessionItem{
		Key:       key,
		Value:     value,
		UpdatedAt: s.now().UTC().Format(time.RFC3339),
	}
	if err := s.db.PutItem(ctx, s.table, item); err != nil {
		return fmt.Errorf("sessionstore: dynamodb put: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	if err := s.db.DeleteItem(ctx, s.table, database.StringKey(keyAttribute, key)); err != nil {
		return fmt.Errorf("sessionstore: dynamodb delete: %w", err)
	}
	return nil
}

func (s *DynamoStore) List(ctx context.Context) ([]Entry, error) {
	var items []sessionItem
	if err := s.db.ScanAll(ctx, s.table, 100, &items); err != nil {
		return nil, fmt.Errorf("sessionstore: dynamodb scan: %w", err)
	}
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, Entry{Key: item.Key, Value: item.Value, UpdatedAt: item.UpdatedAt})
	}
	sortEntries(entries)
	return entries, nil
}
