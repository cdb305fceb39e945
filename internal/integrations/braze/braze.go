// Package braze sends member lifecycle events and attributes to Braze.
package braze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/platform/jobs"
)

// JobTrackEvent is the job type that delivers a queued Event.
const JobTrackEvent = "braze.track_event"

type Event struct {
	ExternalID string         `json:"external_id"`
	Name       string         `json:"name"`
	Time       time.Time      `json:"time"`
	Properties map[string]any `json:"properties,omitempty"`
}

type Tracker interface {
	TrackEvent(ctx context.Context, externalID, name string, properties map[string]any) error
	TrackAttributes(ctx context.Context, externalID string, attributes map[string]any) error
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

// New returns a Tracker. Without a base URL and key it returns Noop.
func New(baseURL, apiKey string, logger zerolog.Logger, opts ...Option) Tracker {
	if baseURL == "" || apiKey == "" {
		return Noop{logger: logger}
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) TrackEvent(ctx context.Context, externalID, name string, properties map[string]any) error {
	return c.track(ctx, map[string]any{
		"events": []Event{{ExternalID: externalID, Name: name, Time: c.now().UTC(), Properties: properties}},
	})
}

func (c *Client) TrackAttributes(ctx context.Context, externalID string, attributes map[string]any) error {
	attrs := make(map[string]any, len(attributes)+1)
	for k, v := range attributes {
		attrs[k] = v
	}
	attrs["external_id"] = externalID
	return c.track(ctx, map[string]any{"attributes": []map[string]any{attrs}})
}

func (c *Client) track(ctx context.Context, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal braze payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/track", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("braze users/track: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("braze users/track: status %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// Noop logs and discards calls.
type Noop struct {
	logger zerolog.Logger
}

func (n Noop) TrackEvent(_ context.Context, externalID, name string, _ map[string]any) error {
	n.logger.Debug().Str("external_id", externalID).Str("event", name).Msg("braze not configured, skipping event")
	return nil
}

func (n Noop) TrackAttributes(_ context.Context, externalID string, _ map[string]any) error {
	n.logger.Debug().Str("external_id", externalID).Msg("braze not configured, skipping attributes")
	return nil
}

// Enqueue schedules an event for async delivery.
func Enqueue(ctx context.Context, q jobs.Queue, externalID, name string, properties map[string]any) error {
	return q.Enqueue(ctx, JobTrackEvent, Event{ExternalID: externalID, Name: name, Properties: properties})
}

// TrackEventJob delivers queued events.
func TrackEventJob(t Tracker) jobs.HandlerFunc {
	return func(ctx context.Context, job jobs.Job) error {
		var evt Event
		if err := job.Decode(&evt); err != nil {
			return err
		}
		return t.TrackEvent(ctx, evt.ExternalID, evt.Name, evt.Properties)
	}
}
