package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/roach88/growth/internal/progress"
)

const (
	// DefaultTimeout bounds a single request when none is configured.
	DefaultTimeout = 5 * time.Second

	clientMaxBodyBytes = 1 << 20
	tokenLifetime      = 5 * time.Minute
)

// Client talks to the progress document service over HTTP.
type Client struct {
	base   *url.URL
	http   *http.Client
	secret []byte
	now    func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithTokenSecret enables HS256 bearer tokens whose subject is the user id.
func WithTokenSecret(secret string) ClientOption {
	return func(c *Client) {
		c.secret = []byte(secret)
	}
}

// NewClient returns a Client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid remote url %q", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	c := &Client{
		base: u,
		http: &http.Client{Timeout: DefaultTimeout},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// envelope is the service's response shape.
type envelope struct {
	Success bool      `json:"success"`
	Data    *Document `json:"data"`
	Error   string    `json:"error"`
	Message string    `json:"message"`
}

// Fetch implements Store.
func (c *Client) Fetch(ctx context.Context, userID string) (*progress.UserProgress, error) {
	status, env, err := c.do(ctx, http.MethodGet, userID, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", userID, err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if env.Data == nil {
		return nil, fmt.Errorf("fetch %s: response has no document", userID)
	}
	p := env.Data.UserProgress
	p.UserID = userID
	return &p, nil
}

// Upsert implements Store.
func (c *Client) Upsert(ctx context.Context, userID string, patch Patch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("upsert %s: marshal patch: %w", userID, err)
	}
	status, _, err := c.do(ctx, http.MethodPatch, userID, body)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", userID, err)
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("upsert %s: endpoint not found", userID)
	}
	return nil
}

// do performs one request and decodes the envelope. A 404 is returned as a
// status with no error so callers can decide what absence means.
func (c *Client) do(ctx context.Context, method, userID string, body []byte) (int, envelope, error) {
	endpoint := c.base.JoinPath("api", "progress", userID)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return 0, envelope{}, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(c.secret) > 0 {
		token, err := c.token(userID)
		if err != nil {
			return 0, envelope{}, fmt.Errorf("sign token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, envelope{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, clientMaxBodyBytes))
	if err != nil {
		return 0, envelope{}, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return resp.StatusCode, envelope{}, errors.New("invalid progress service response")
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, env, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return resp.StatusCode, env, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, env, fmt.Errorf("progress service: status %d: %s", resp.StatusCode, msg)
	}
	return resp.StatusCode, env, nil
}

func (c *Client) token(userID string) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}
