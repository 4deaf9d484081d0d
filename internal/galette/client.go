package galette

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client reads member data from the Galette REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type groupsResponse struct {
	Groups []struct {
		Name string `json:"name"`
	} `json:"groups"`
}

// MemberGroups returns the group names of the member identified by subject.
func (c *Client) MemberGroups(ctx context.Context, subject string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/api/members/%s/groups", c.baseURL, url.PathEscape(subject))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("galette request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("galette status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload groupsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}

	groups := make([]string, 0, len(payload.Groups))
	for _, g := range payload.Groups {
		groups = append(groups, g.Name)
	}
	return groups, nil
}
