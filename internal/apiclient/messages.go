package apiclient

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"chat-app-client/internal/dto"
	"chat-app-client/internal/model"
)

// MessageQuery selects one page of a conversation's messages, by numeric id or uuid.
type MessageQuery struct {
	ConversationID   int64
	ConversationUUID string
	Page             int
	PageSize         int
}

func (q MessageQuery) values() url.Values {
	v := url.Values{}
	if q.ConversationUUID != "" {
		v.Set("conv_uuid", q.ConversationUUID)
	} else {
		v.Set("conversation_id", strconv.FormatInt(q.ConversationID, 10))
	}
	v.Set("page", strconv.Itoa(max(q.Page, 1)))
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	return v
}

func (c *Client) ListMessages(ctx context.Context, q MessageQuery) (dto.Page[model.Message], error) {
	if q.ConversationUUID == "" && q.ConversationID == 0 {
		return dto.Page[model.Message]{}, &NetworkError{Err: errors.New("conversation id or uuid is required")}
	}

	var page dto.Page[model.Message]
	if err := c.get(ctx, "/messages", q.values(), &page); err != nil {
		return dto.Page[model.Message]{}, err
	}
	for i := range page.Items {
		page.Items[i].Delivery = model.DeliverySent
		if page.Items[i].ConversationUUID == "" {
			page.Items[i].ConversationUUID = q.ConversationUUID
		}
	}
	return page, nil
}

func (c *Client) SendMessage(ctx context.Context, req dto.SendMessageRequest) (model.Message, error) {
	if strings.TrimSpace(req.Content) == "" {
		return model.Message{}, &NetworkError{Err: errors.New("message content is required")}
	}
	if req.ContentType == "" {
		req.ContentType = model.ContentText
	}

	var msg model.Message
	if err := c.post(ctx, "/messages", req, &msg); err != nil {
		return model.Message{}, err
	}
	msg.Delivery = model.DeliverySent
	if msg.ConversationUUID == "" {
		msg.ConversationUUID = req.ConversationUUID
	}
	return msg, nil
}
