// Package notify pushes reconciled call state to the peer system that owns
// the constituent-facing call record.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"callrep/internal/calls"
)

// TokenIssuer mints the bearer token sent with each push.
type TokenIssuer interface {
	Issue(now time.Time, subject, role string) (string, error)
}

// HTTPNotifier POSTs {base}/calls/{id}/status with the same body the peer
// accepts from the voice-delivery subsystem. One attempt per event.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
	tokens  TokenIssuer
	subject string
	role    string
	clock   func() time.Time
}

type Option func(*HTTPNotifier)

func WithHTTPClient(c *http.Client) Option { return func(n *HTTPNotifier) { n.client = c } }

func WithClock(clock func() time.Time) Option { return func(n *HTTPNotifier) { n.clock = clock } }

// NewHTTPNotifier returns a notifier for baseURL. tokens may be nil, in which
// case requests carry no Authorization header.
func NewHTTPNotifier(baseURL string, tokens TokenIssuer, opts ...Option) *HTTPNotifier {
	n := &HTTPNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		tokens:  tokens,
		subject: "callrep",
		role:    "service",
		clock:   time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

func payload(c calls.Call) calls.StatusUpdate {
	return calls.StatusUpdate{
		Status:         string(c.Status),
		Duration:       c.Duration,
		Transcript:     c.Transcript,
		Recording:      c.Recording,
		ErrorMessage:   c.ErrorMessage,
		ProviderCallID: c.ProviderCallID,
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, c calls.Call) error {
	body, err := json.Marshal(payload(c))
	if err != nil {
		return err
	}

	endpoint := n.baseURL + "/calls/" + url.PathEscape(c.ID) + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.tokens != nil {
		tok, err := n.tokens.Issue(n.clock(), n.subject, n.role)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("peer error (%d): %s", resp.StatusCode, string(b))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
