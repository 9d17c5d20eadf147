// Package api is the HTTP client for the remote HabitPilot API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/julianstephens/habitpilot/internal/constants"
	"github.com/julianstephens/habitpilot/internal/errors"
	"github.com/julianstephens/habitpilot/internal/models"
)

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token() (string, error)
}

// TokenFunc adapts a plain function to TokenSource.
type TokenFunc func() (string, error)

func (f TokenFunc) Token() (string, error) { return f() }

// StaticToken always returns the same token.
func StaticToken(token string) TokenSource {
	return TokenFunc(func() (string, error) { return token, nil })
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     TokenSource
	userAgent  string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit sets the client-side token bucket. A non-positive rate
// disables limiting.
func WithRateLimit(r float64, burst int) Option {
	return func(c *Client) {
		if r <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q: missing host", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: constants.DefaultHTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(constants.DefaultRequestRate), constants.DefaultRequestBurst),
		userAgent:  constants.AppName + "/" + constants.Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type listHabitsResponse struct {
	Habits []models.Habit `json:"habits"`
}

func (c *Client) ListHabits(ctx context.Context) ([]models.Habit, error) {
	var resp listHabitsResponse
	if err := c.do(ctx, "list habits", http.MethodGet, "/habits", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Habits == nil {
		resp.Habits = []models.Habit{}
	}
	return resp.Habits, nil
}

func (c *Client) CreateHabit(ctx context.Context, draft models.HabitDraft) (models.Habit, error) {
	var h models.Habit
	if err := c.do(ctx, "create habit", http.MethodPost, "/habits", draft, &h); err != nil {
		return models.Habit{}, err
	}
	return h, nil
}

func (c *Client) UpdateHabit(ctx context.Context, habit models.Habit) (models.Habit, error) {
	var h models.Habit
	if err := c.do(ctx, "update habit", http.MethodPut, habitPath(habit.ID, ""), habit, &h); err != nil {
		return models.Habit{}, err
	}
	return h, nil
}

func (c *Client) DeleteHabit(ctx context.Context, id string) error {
	return c.do(ctx, "delete habit", http.MethodDelete, habitPath(id, ""), nil, nil)
}

func (c *Client) CompleteHabit(ctx context.Context, id string) (models.CompletionResult, error) {
	var res models.CompletionResult
	err := c.do(ctx, "complete habit", http.MethodPost, habitPath(id, "complete"), nil, &res)
	return res, err
}

func (c *Client) UndoHabit(ctx context.Context, id string) (models.CompletionResult, error) {
	var res models.CompletionResult
	err := c.do(ctx, "undo habit", http.MethodPost, habitPath(id, "undo"), nil, &res)
	return res, err
}

func (c *Client) CreateActivity(ctx context.Context, activity models.Activity) error {
	return c.do(ctx, "create activity", http.MethodPost, "/activities", activity, nil)
}

func habitPath(id, action string) string {
	p := "/habits/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

// do sends one request and decodes a JSON reply into out when out is non-nil.
// Every failure comes back as an *errors.RemoteError.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Remote(op, errors.KindNetwork, 0, err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Remote(op, errors.KindUnknown, 0, fmt.Errorf("failed to encode request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL.String() + constants.APIPrefix + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.Remote(op, errors.KindUnknown, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return errors.Remote(op, errors.KindUnauthorized, 0, err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Remote(op, errors.KindNetwork, 0, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Remote(op, errors.KindNetwork, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Remote(op, errors.KindUnauthorized, resp.StatusCode, fmt.Errorf("%s", errorMessage(payload, resp.Status)))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errors.Remote(op, errors.KindServer, resp.StatusCode, fmt.Errorf("%s", errorMessage(payload, resp.Status)))
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return errors.Remote(op, errors.KindInvalidResponse, resp.StatusCode, fmt.Errorf("empty response body"))
	}
	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		return errors.Remote(op, errors.KindInvalidResponse, resp.StatusCode,
			fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type")))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Remote(op, errors.KindDecode, resp.StatusCode, err)
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

// errorMessage prefers the server's {"error": "..."} message over the status text.
func errorMessage(payload []byte, status string) string {
	var eb errorBody
	if json.Unmarshal(payload, &eb) == nil && eb.Error != "" {
		return eb.Error
	}
	return status
}
