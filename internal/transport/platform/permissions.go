// Package platform holds HTTP clients for the Knowledge Network platform
// services: authorization and the entity store.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/knowledge-network/knsearch/internal/domain"
)

const defaultTimeout = 5 * time.Second

// PermissionsConfig holds the authorization service client settings.
type PermissionsConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// PermissionsClient resolves caller permissions against the platform
// authorization service. An empty BaseURL disables the client: every caller
// is treated as an unrestricted admin. That mode exists for local
// development only.
type PermissionsClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewPermissionsClient creates an authorization service client.
func NewPermissionsClient(cfg PermissionsConfig) *PermissionsClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionsClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type permissionsResponse struct {
	Role        string   `json:"role"`
	Collections []string `json:"collections"`
	HasAccess   bool     `json:"hasAccess"`
}

// GetUserPermissions returns the caller's role in the workspace.
func (c *PermissionsClient) GetUserPermissions(ctx context.Context, userID, workspaceID string) (domain.UserPermissions, error) {
	if c.baseURL == "" {
		return domain.UserPermissions{Role: domain.RoleAdmin}, nil
	}
	resp, err := c.fetch(ctx, userID, workspaceID)
	if err != nil {
		return domain.UserPermissions{}, err
	}
	return domain.UserPermissions{Role: domain.Role(resp.Role)}, nil
}

// GetUserCollections returns the collection allow-list for the caller.
// A single "*" entry means unrestricted access.
func (c *PermissionsClient) GetUserCollections(ctx context.Context, userID, workspaceID string) ([]string, error) {
	if c.baseURL == "" {
		return []string{domain.WildcardCollection}, nil
	}
	resp, err := c.fetch(ctx, userID, workspaceID)
	if err != nil {
		return nil, err
	}
	if len(resp.Collections) == 0 {
		return []string{domain.WildcardCollection}, nil
	}
	return resp.Collections, nil
}

// CheckWorkspaceAccess reports whether the caller may touch the workspace.
func (c *PermissionsClient) CheckWorkspaceAccess(ctx context.Context, userID, workspaceID string) (bool, error) {
	if c.baseURL == "" {
		return true, nil
	}
	resp, err := c.fetch(ctx, userID, workspaceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return resp.HasAccess, nil
}

func (c *PermissionsClient) fetch(ctx context.Context, userID, workspaceID string) (*permissionsResponse, error) {
	endpoint := fmt.Sprintf("%s/v1/workspaces/%s/users/%s/permissions",
		c.baseURL, url.PathEscape(workspaceID), url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build permissions request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("permissions request: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("permissions for user %s in workspace %s: %w", userID, workspaceID, domain.ErrNotFound)
	case res.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		c.logger.Warn("permissions service error",
			zap.Int("status", res.StatusCode),
			zap.String("workspace_id", workspaceID),
		)
		return nil, fmt.Errorf("permissions service returned %d: %s", res.StatusCode, string(body))
	}

	var out permissionsResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode permissions response: %w", err)
	}
	return &out, nil
}
