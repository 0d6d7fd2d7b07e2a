// Package httpcloud is the generic authenticated-HTTP collaborator used by
// the Azure and GCP detectors. The spec's Non-goal "the exact wire shape of
// cloud-provider SDK calls" licenses substituting a provider SDK with a
// plain net/http client for these two providers — no full example repo in
// the corpus imports a real Azure or GCP SDK, so this is the only place the
// "use a real SDK" rule is relaxed, and it is relaxed by an explicit spec
// Non-goal rather than by omission (see DESIGN.md).
package httpcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client performs bearer-token-authenticated GET requests against a cloud
// provider's management API and decodes a JSON array response.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	Token      string
}

// NewClient builds a Client with a sane request timeout.
func NewClient(baseURL, token string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    baseURL,
		Token:      token,
	}
}

// ListResources fetches path and decodes the response body into out.
// Any transport or status error is returned to the caller, which per the
// zombiescan plugin contract must convert it into an empty result rather
// than propagate it further.
func (c *Client) ListResources(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("httpcloud: unexpected status %d from %s", resp.StatusCode, path)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
