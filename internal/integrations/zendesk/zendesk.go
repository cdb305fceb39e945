// Package zendesk opens and updates support tickets for care advocate
// conversations.
package zendesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Ticket struct {
	Subject     string   `json:"subject"`
	Body        string   `json:"-"`
	RequesterID *int64   `json:"requester_id,omitempty"`
	ExternalID  string   `json:"external_id,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type Comment struct {
	Body   string `json:"body"`
	Public bool   `json:"public"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zendesk: status %d: %s", e.StatusCode, e.Body)
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

type Client struct {
	baseURL    string
	email      string
	apiToken   string
	httpClient *http.Client
}

func New(baseURL, email, apiToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CreateTicket opens a ticket whose first comment is t.Body and returns its id.
func (c *Client) CreateTicket(ctx context.Context, t Ticket) (int64, error) {
	payload := map[string]any{
		"ticket": struct {
			Ticket
			Comment Comment `json:"comment"`
		}{Ticket: t, Comment: Comment{Body: t.Body, Public: true}},
	}

	var out struct {
		Ticket struct {
			ID int64 `json:"id"`
		} `json:"ticket"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v2/tickets.json", payload, &out); err != nil {
		return 0, err
	}
	return out.Ticket.ID, nil
}

// AddComment appends a comment to ticketID and returns the ticket's audit id.
func (c *Client) AddComment(ctx context.Context, ticketID int64, body string, public bool) (int64, error) {
	payload := map[string]any{
		"ticket": map[string]any{"comment": Comment{Body: body, Public: public}},
	}
	var out struct {
		Audit struct {
			ID int64 `json:"id"`
		} `json:"audit"`
	}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v2/tickets/%d.json", ticketID), payload, &out); err != nil {
		return 0, err
	}
	return out.Audit.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal zendesk request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.email+"/token", c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("zendesk %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode zendesk response: %w", err)
	}
	return nil
}
