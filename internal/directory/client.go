package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/attendance-mainframe/internal/config"
	"github.com/attendance-mainframe/internal/domain"
)

// Client talks to the group directory, the external authority for
// member ranks and usernames. Rank changes made there always win over
// locally tracked mark progress.
type Client struct {
	baseURL string
	groupID int64
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a new directory client
func NewClient(cfg *config.DirectoryConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		groupID: cfg.GroupID,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type memberResponse struct {
	RankID   int64  `json:"rank_id"`
	RankName string `json:"rank_name"`
}

// GetRank returns the member's current rank id in the group. A member
// the directory does not recognize yields ErrNotInGroup.
func (c *Client) GetRank(ctx context.Context, userID int64) (int64, error) {
	url := fmt.Sprintf("%s/v1/groups/%d/members/%d", c.baseURL, c.groupID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("building rank request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("querying directory: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, domain.ErrNotInGroup
	default:
		return 0, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	var member memberResponse
	if err := json.NewDecoder(resp.Body).Decode(&member); err != nil {
		return 0, fmt.Errorf("decoding directory response: %w", err)
	}
	return member.RankID, nil
}

type resolveRequest struct {
	Usernames []string `json:"usernames"`
}

type resolveResponse struct {
	Results []struct {
		Username string `json:"username"`
		UserID   int64  `json:"user_id"`
	} `json:"results"`
}

// ResolveUsernames maps display names to user ids. Names the directory
// does not know are absent from the result rather than an error.
func (c *Client) ResolveUsernames(ctx context.Context, names []string) (map[string]int64, error) {
	body, err := json.Marshal(resolveRequest{Usernames: names})
	if err != nil {
		return nil, fmt.Errorf("encoding resolve request: %w", err)
	}

	url := c.baseURL + "/v1/usernames/resolve"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building resolve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolving usernames: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	var decoded resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding resolve response: %w", err)
	}

	resolved := make(map[string]int64, len(decoded.Results))
	for _, result := range decoded.Results {
		resolved[result.Username] = result.UserID
	}
	return resolved, nil
}
