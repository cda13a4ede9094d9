package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"chat-app-client/internal/dto"
	"chat-app-client/internal/model"
)

// ConversationQuery selects one page of the conversation listing.
type ConversationQuery struct {
	Page     int
	PageSize int
	Status   model.ConversationStatus
}

func (q ConversationQuery) values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(max(q.Page, 1)))
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	return v
}

func (c *Client) ListConversations(ctx context.Context, q ConversationQuery) (dto.Page[model.Conversation], error) {
	var page dto.Page[model.Conversation]
	if err := c.get(ctx, "/conversations", q.values(), &page); err != nil {
		return dto.Page[model.Conversation]{}, err
	}
	return page, nil
}

// CreateConversation opens a conversation on behalf of a widget source.
func (c *Client) CreateConversation(ctx context.Context, source string) (dto.CreateConversationResponse, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return dto.CreateConversationResponse{}, &NetworkError{Err: errors.New("source is required")}
	}

	var res dto.CreateConversationResponse
	if err := c.post(ctx, "/conversations", dto.CreateConversationRequest{Source: source}, &res); err != nil {
		return dto.CreateConversationResponse{}, err
	}
	if res.UUID == "" {
		return dto.CreateConversationResponse{}, &NetworkError{Err: errors.New("create conversation: empty uuid in response")}
	}
	return res, nil
}

func (c *Client) CloseConversation(ctx context.Context, id int64) error {
	return c.setConversationStatus(ctx, id, model.ConversationStatusClosed)
}

func (c *Client) ReopenConversation(ctx context.Context, id int64) error {
	return c.setConversationStatus(ctx, id, model.ConversationStatusOpen)
}

func (c *Client) setConversationStatus(ctx context.Context, id int64, status model.ConversationStatus) error {
	p := fmt.Sprintf("/conversations/%d/status", id)
	return c.put(ctx, p, dto.ConversationStatusRequest{Status: status}, nil)
}
