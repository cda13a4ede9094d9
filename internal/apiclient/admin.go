package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"chat-app-client/internal/dto"
	"chat-app-client/internal/model"
)

func (c *Client) ListSources(ctx context.Context) ([]model.Source, error) {
	var sources []model.Source
	if err := c.get(ctx, "/sources", nil, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

func (c *Client) CreateSource(ctx context.Context, req dto.SourceRequest) (model.Source, error) {
	if strings.TrimSpace(req.Tag) == "" {
		return model.Source{}, &NetworkError{Err: errors.New("source tag is required")}
	}
	var src model.Source
	if err := c.post(ctx, "/sources", req, &src); err != nil {
		return model.Source{}, err
	}
	return src, nil
}

func (c *Client) UpdateSource(ctx context.Context, id int64, req dto.SourceRequest) (model.Source, error) {
	var src model.Source
	if err := c.put(ctx, fmt.Sprintf("/sources/%d", id), req, &src); err != nil {
		return model.Source{}, err
	}
	return src, nil
}

func (c *Client) DeleteSource(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/sources/%d", id), nil)
}

func configPath(key string) string {
	return "/config/" + url.PathEscape(key)
}

func (c *Client) GetConfig(ctx context.Context, key string) (string, error) {
	var cv dto.ConfigValue
	if err := c.get(ctx, configPath(key), nil, &cv); err != nil {
		return "", err
	}
	return cv.Value, nil
}

func (c *Client) SetConfig(ctx context.Context, key, value string) error {
	return c.put(ctx, configPath(key), dto.ConfigValue{Key: key, Value: value}, nil)
}

func (c *Client) DeleteConfig(ctx context.Context, key string) error {
	return c.delete(ctx, configPath(key), nil)
}

func (c *Client) ListAgents(ctx context.Context) ([]model.Agent, error) {
	var agents []model.Agent
	if err := c.get(ctx, "/agents", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

func (c *Client) SetAgent(ctx context.Context, req dto.SetAgentRequest) (model.Agent, error) {
	var agent model.Agent
	if err := c.put(ctx, "/agents", req, &agent); err != nil {
		return model.Agent{}, err
	}
	return agent, nil
}

// VerifyPermission asks the backend whether the current token holds permission.
func (c *Client) VerifyPermission(ctx context.Context, permission string) (bool, error) {
	var res dto.VerifyPermissionResponse
	if err := c.post(ctx, "/permissions/verify", dto.VerifyPermissionRequest{Permission: permission}, &res); err != nil {
		return false, err
	}
	return res.Allowed, nil
}
