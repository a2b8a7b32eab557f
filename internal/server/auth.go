package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// authClient verifies bearer tokens against the external auth service. This
// system never issues or inspects credentials itself.
type authClient struct {
	baseURL string
	client  *http.Client
}

func newAuthClient(baseURL string) *authClient {
	return &authClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *authClient) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/validate", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth service: validation failed: %d", resp.StatusCode)
	}

	var out struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("auth service: decode response: %w", err)
	}
	if out.UserID == "" {
		return "", fmt.Errorf("auth service: empty user id")
	}

	return out.UserID, nil
}
