package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/knowledge-network/knsearch/internal/domain"
)

// Compile-time check: HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// HTTPConfig holds connection parameters for the engine.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	Refresh RefreshMode
	Logger  *zap.Logger
}

// HTTPClient talks to the engine over its JSON HTTP API.
type HTTPClient struct {
	baseURL string
	refresh RefreshMode
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPClient creates an engine client.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	refresh := cfg.Refresh
	if !refresh.IsValid() {
		refresh = RefreshWaitFor
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		refresh: refresh,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Search executes a query against the index.
func (c *HTTPClient) Search(ctx context.Context, index string, body map[string]any) (*Response, error) {
	data, err := c.post(ctx, fmt.Sprintf("/%s/_search", url.PathEscape(index)), body)
	if err != nil {
		return nil, err
	}
	resp, err := parseResponse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEngineUnavailable, err)
	}
	return resp, nil
}

// Bulk applies the actions as one alternating action/document payload.
func (c *HTTPClient) Bulk(ctx context.Context, actions []BulkAction) (*BulkResponse, error) {
	if len(actions) == 0 {
		return &BulkResponse{}, nil
	}

	payload := make([]any, 0, len(actions)*2)
	for _, a := range actions {
		payload = append(payload, map[string]any{
			string(a.Type): map[string]any{"_index": a.Index, "_id": a.ID},
		})
		if a.Type == BulkIndex {
			payload = append(payload, a.Document)
		}
	}

	data, err := c.post(ctx, "/_bulk?refresh="+string(c.refresh), payload)
	if err != nil {
		return nil, err
	}

	var resp BulkResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode bulk response: %w", domain.ErrEngineUnavailable, err)
	}
	return &resp, nil
}

// Delete removes one document immediately.
func (c *HTTPClient) Delete(ctx context.Context, index, id string) error {
	path := fmt.Sprintf("/%s/_doc/%s?refresh=%s", url.PathEscape(index), url.PathEscape(id), c.refresh)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if _, err := c.send(req); err != nil {
		return err
	}
	return nil
}

// Ping checks engine availability.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if _, err := c.send(req); err != nil {
		return err
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.send(req)
}

func (c *HTTPClient) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEngineUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrEngineUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		c.logger.Warn("engine call rejected",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d", domain.ErrEngineUnavailable, resp.StatusCode)
	}
	return data, nil
}
