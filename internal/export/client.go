// Package export posts C-arm export payloads to a running simulation
// session.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/banshee-data/carm/internal/carm"
	"github.com/banshee-data/carm/internal/httputil"
	"github.com/banshee-data/carm/internal/monitoring"
)

var (
	// ErrNoEndpoint means no simulation endpoint was configured.
	ErrNoEndpoint = errors.New("export: no simulation endpoint configured")
	// ErrNoSession means no session id was configured.
	ErrNoSession = errors.New("export: no session id configured")
)

// StatusError is returned for a non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("export: server returned %d: %s", e.StatusCode, e.Body)
}

// Client submits parameters for one session.
type Client struct {
	Endpoint  string
	SessionID string
	HTTP      httputil.HTTPClient
}

// NewClient builds a client over the default HTTP transport.
func NewClient(endpoint, sessionID string) *Client {
	return &Client{
		Endpoint:  endpoint,
		SessionID: sessionID,
		HTTP:      httputil.NewStandardClient(nil),
	}
}

// ParametersURL returns the parameter submission URL for the session.
func (c *Client) ParametersURL() (string, error) {
	if strings.TrimSpace(c.Endpoint) == "" {
		return "", ErrNoEndpoint
	}
	if strings.TrimSpace(c.SessionID) == "" {
		return "", ErrNoSession
	}
	return strings.TrimRight(c.Endpoint, "/") + "/session/" + c.SessionID + "/parameters/", nil
}

// PostParameters validates p and posts it as JSON. There are no retries.
func (c *Client) PostParameters(ctx context.Context, p carm.ExportParameters) error {
	url, err := c.ParametersURL()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("export: invalid payload: %w", err)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("export: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("export: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTP
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("export: post parameters: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	monitoring.Logf("export: posted parameters for session %s (%d samples)", c.SessionID, p.NumSamples)
	return nil
}

// ParseSessionID extracts the session UUID that follows a "session" path
// segment, e.g. "/api/v1/session/<id>/parameters/".
func ParseSessionID(path string) (string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] != "session" {
			continue
		}
		id, err := uuid.Parse(parts[i+1])
		if err != nil {
			return "", fmt.Errorf("invalid session id %q: %w", parts[i+1], err)
		}
		return id.String(), nil
	}
	return "", fmt.Errorf("no session id in %q: %w", path, ErrNoSession)
}
