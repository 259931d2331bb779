package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chess-vn/slpuzzle/internal/aws/auth"
)

const (
	CommandsPath = "/internal/commands"
	tokenIssuer  = "slpuzzle-bridge"
	tokenSubject = "api"
	tokenTtl     = time.Minute
)

// Client posts commands to a remote realtime process.
type Client struct {
	baseUrl string
	secret  string
	http    *http.Client
}

func NewClient(baseUrl, secret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		baseUrl: baseUrl,
		secret:  secret,
		http:    httpClient,
	}
}

func (c *Client) Send(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	token, err := auth.IssueToken(c.secret, tokenIssuer, tokenSubject, tokenTtl)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+CommandsPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("failed to send command: status %d", resp.StatusCode)
	}
	return nil
}
