package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/harborview/guestchat/pkg/agent"
	"github.com/harborview/guestchat/pkg/logger"
)

// DefaultTimeout bounds a single delivery attempt for interactive chat.
// Long-running agent backends get a larger ceiling per call site via
// context deadlines, never a global override.
const DefaultTimeout = 60 * time.Second

const maxReplyBytes = 1 << 20

// Checker reports whether the device currently has connectivity. The client
// fast-fails with ErrNetwork while offline instead of burning a timeout.
type Checker interface {
	Online() bool
}

// Client delivers one message per call to an agent webhook endpoint.
type Client struct {
	httpClient *http.Client
	checker    Checker
	timeout    time.Duration
	log        *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the default per-attempt timeout applied when the caller's
// context carries no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithChecker installs a connectivity checker for offline fast-fail.
func WithChecker(checker Checker) Option {
	return func(c *Client) { c.checker = checker }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for attempt diagnostics.
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a delivery client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		log:        logger.NewComponentLogger("transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send performs one delivery attempt against the given agent: shapes the
// payload, POSTs it to the agent endpoint, and parses the reply. Failures are
// classified as ErrNetwork, ErrTimeout, or *ServerError.
func (c *Client) Send(ctx context.Context, cfg agent.Config, text, sessionID string) (*Reply, error) {
	if c.checker != nil && !c.checker.Online() {
		return nil, errors.Wrap(ErrNetwork, "device is offline")
	}

	shape := cfg.Shape
	if shape == nil {
		shape = agent.StandardShape
	}
	body, err := json.Marshal(shape(text, sessionID))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode payload for agent %s", cfg.ID)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build request for agent %s", cfg.ID)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{Status: resp.StatusCode}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		c.log.Debug("Failed to read reply body", "agent", cfg.ID, "error", err)
		// The remote accepted the message; a lost reply body is not a
		// delivery failure.
		return &Reply{}, nil
	}

	return ParseReply(respBody), nil
}

// classifyTransportError maps request errors onto the retryable taxonomy.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(ErrTimeout, err.Error())
	}
	return errors.Wrap(ErrNetwork, err.Error())
}
