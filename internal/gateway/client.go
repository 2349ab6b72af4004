// Package gateway is the client for the OpenRouter-compatible model API.
// It validates responses at this boundary so callers only ever see a typed
// Result or an error, never a loosely shaped payload.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conclave-ai/conclave/pkg/logger"
	"github.com/conclave-ai/conclave/pkg/metrics"
)

// ErrMissingCredential is returned before any network dispatch when no API
// key is configured and none was supplied with the request.
var ErrMissingCredential = errors.New("missing gateway credential")

// bodyPreviewLimit caps how much of an error response body lands in errors.
const bodyPreviewLimit = 512

// Client queries models through a chat completions endpoint.
type Client struct {
	apiURL string
	apiKey string
	log    logger.Logger
}

// NewClient creates a gateway client. The key may be empty when callers are
// expected to supply per-request credentials via WithCredential.
func NewClient(apiURL, apiKey string) *Client {
	return &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		log:    logger.Named("gateway"),
	}
}

// WithCredential returns a client using the given key. An empty key keeps
// the configured default.
func (c *Client) WithCredential(apiKey string) *Client {
	if apiKey == "" {
		return c
	}
	clone := *c
	clone.apiKey = apiKey
	return &clone
}

// HasCredential reports whether the client can authenticate at all.
func (c *Client) HasCredential() bool {
	return c.apiKey != ""
}

// Query sends one chat completion request to a single model with the given
// timeout and returns its validated result.
func (c *Client) Query(ctx context.Context, model string, messages []Message, timeout time.Duration) (*Result, error) {
	if c.apiKey == "" {
		return nil, ErrMissingCredential
	}

	start := time.Now()
	result, err := c.doQuery(ctx, model, messages, timeout)
	if err != nil {
		metrics.RecordModelQuery(model, "error")
		return nil, err
	}
	metrics.RecordModelQuery(model, "ok")
	metrics.RecordModelQueryLatency(model, time.Since(start).Seconds())
	return result, nil
}

func (c *Client) doQuery(ctx context.Context, model string, messages []Message, timeout time.Duration) (*Result, error) {
	client := &http.Client{Timeout: timeout}

	payload := chatRequest{
		Model:    model,
		Messages: messages,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, bodyPreviewLimit))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResponse chatResponse
	if err := json.Unmarshal(bodyBytes, &apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	message := apiResponse.Choices[0].Message
	return &Result{
		Content:          message.Content,
		ReasoningDetails: message.ReasoningDetails,
	}, nil
}

// QueryParallel queries multiple models concurrently with graceful
// degradation: a failed model maps to nil while the rest proceed. The
// credential is checked once, before any dispatch.
func (c *Client) QueryParallel(ctx context.Context, models []string, messages []Message, timeout time.Duration) (map[string]*Result, error) {
	if c.apiKey == "" {
		return nil, ErrMissingCredential
	}

	g, ctx := errgroup.WithContext(ctx)

	results := make(map[string]*Result, len(models))
	var mu sync.Mutex

	for _, model := range models {
		g.Go(func() error {
			result, err := c.Query(ctx, model, messages, timeout)
			if err != nil {
				c.log.Warn(ctx, "model query failed",
					logger.String("model", model),
					logger.Error(err))
				mu.Lock()
				results[model] = nil
				mu.Unlock()
				return nil
			}
			mu.Lock()
			results[model] = result
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
