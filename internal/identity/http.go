package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient disables actors through the identity service's admin API.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Disable calls POST /api/v1/users/{id}/disable. 200 and 204 mean this call
// disabled the actor, 409 means it was already disabled, 404 maps to
// ErrActorNotFound.
func (c *HTTPClient) Disable(ctx context.Context, actorID, by string) (DisableResult, error) {
	body, _ := json.Marshal(map[string]string{"disabled_by": by})
	endpoint := fmt.Sprintf("%s/api/v1/users/%s/disable", c.baseURL, url.PathEscape(actorID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("identity disable request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return Disabled, nil
	case http.StatusConflict:
		return AlreadyDisabled, nil
	case http.StatusNotFound:
		return 0, ErrActorNotFound
	default:
		return 0, fmt.Errorf("identity disable returned %d", resp.StatusCode)
	}
}
