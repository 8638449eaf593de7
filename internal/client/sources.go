// Package client talks to the source persistence endpoints of a remote style-feed backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kovalyov-valentin/style-feed/internal/model"
)

const defaultTimeout = 10 * time.Second

var ErrUnexpectedStatus = errors.New("unexpected status")

// SourcesClient implements registry.RemoteStore over HTTP.
type SourcesClient struct {
	baseURL string
	http    *http.Client
}

func NewSourcesClient(baseURL string, httpClient *http.Client) *SourcesClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &SourcesClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

type SaveRequest struct {
	Sources []model.Source `json:"sources"`
}

func (c *SourcesClient) endpoint(userID string) string {
	return fmt.Sprintf("%s/users/%s/feed-sources", c.baseURL, url.PathEscape(userID))
}

// Sources fetches GET /users/{userId}/feed-sources.
func (c *SourcesClient) Sources(ctx context.Context, userID string) ([]model.Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(userID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get sources: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var sources []model.Source
	if err := json.NewDecoder(resp.Body).Decode(&sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	return sources, nil
}

// SaveSources replaces the list with PUT /users/{userId}/feed-sources.
func (c *SourcesClient) SaveSources(ctx context.Context, userID string, sources []model.Source) error {
	if sources == nil {
		sources = []model.Source{}
	}
	body, err := json.Marshal(SaveRequest{Sources: sources})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint(userID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("put sources: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
