package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

// gatewayClient calls the studio gateway's character routes.
type gatewayClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type characterList struct {
	Data       []types.Character `json:"data"`
	VoiceTypes []types.VoiceType `json:"voice_types"`
}

func newGatewayClient(baseURL, apiKey string, hc *http.Client) (*gatewayClient, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid gateway url %q", baseURL)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &gatewayClient{baseURL: strings.TrimRight(u.String(), "/"), apiKey: apiKey, http: hc}, nil
}

func (c *gatewayClient) ListCharacters(ctx context.Context) (*characterList, error) {
	var out characterList
	if err := c.do(ctx, http.MethodGet, "/v1/characters", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *gatewayClient) GetCharacter(ctx context.Context, id string) (*types.Character, error) {
	var out types.Character
	if err := c.do(ctx, http.MethodGet, "/v1/characters/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *gatewayClient) CreateCharacter(ctx context.Context, ch types.Character) (*types.Character, error) {
	var out types.Character
	if err := c.do(ctx, http.MethodPost, "/v1/characters", ch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *gatewayClient) DeleteCharacter(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/characters/"+url.PathEscape(id), nil, nil)
}

func (c *gatewayClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return core.NewTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeGatewayError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeGatewayError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var env struct {
		Error *core.Error `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		return env.Error
	}
	return core.NewAPIError(fmt.Sprintf("gateway returned %s", resp.Status))
}
