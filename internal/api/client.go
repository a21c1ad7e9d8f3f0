// Package api is the gateway to the remote task service. Each exported
// method maps to one REST endpoint and is fire-once: no retry, no queue.
package api

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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/idilsaglam/tasks/internal/model"
)

const (
	// DefaultAuthHeader carries the session token on authenticated calls.
	DefaultAuthHeader = "x-auth-token"
	// maxErrorBody bounds how much of a failed response we read.
	maxErrorBody = 64 << 10
)

// TokenSource yields the current session token, "" when absent.
type TokenSource interface {
	Token() string
}

// AuthResponse is the success payload of register and login.
type AuthResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Client talks to the REST side of the service.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
	baseURL    string
	authHeader string
	tokens     TokenSource
}

// Option tweaks a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuthHeader sets the header that carries the token. "Authorization"
// switches to the "Bearer <token>" form.
func WithAuthHeader(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.authHeader = name
		}
	}
}

// WithTimeout bounds every call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient returns a Client for baseURL (e.g. http://localhost:5000/api).
func NewClient(baseURL string, tokens TokenSource, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		authHeader: DefaultAuthHeader,
		tokens:     tokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register creates an account. Input is validated before anything is sent.
func (c *Client) Register(ctx context.Context, username, email, password string) (*AuthResponse, error) {
	if err := ValidateRegistration(username, email, password); err != nil {
		return nil, err
	}
	body := map[string]string{
		"username": strings.TrimSpace(username),
		"email":    strings.TrimSpace(email),
		"password": password,
	}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/user/register", body, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	if err := ValidateLogin(email, password); err != nil {
		return nil, err
	}
	body := map[string]string{
		"email":    strings.TrimSpace(email),
		"password": password,
	}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/user/login", body, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks fetches every task of the session user.
func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	var out []model.Task
	if err := c.do(ctx, http.MethodGet, "/task", nil, true, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Task{}
	}
	return out, nil
}

type taskBody struct {
	Title  string       `json:"title,omitempty"`
	Status model.Status `json:"status"`
}

// CreateTask creates a pending task.
func (c *Client) CreateTask(ctx context.Context, title string) (*model.Task, error) {
	if err := ValidateTask(title, model.StatusPending); err != nil {
		return nil, err
	}
	var out model.Task
	body := taskBody{Title: strings.TrimSpace(title), Status: model.StatusPending}
	if err := c.do(ctx, http.MethodPost, "/task", body, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTask replaces title and status of task id.
func (c *Client) UpdateTask(ctx context.Context, id, title string, status model.Status) (*model.Task, error) {
	if err := ValidateTask(title, status); err != nil {
		return nil, err
	}
	var out model.Task
	body := taskBody{Title: strings.TrimSpace(title), Status: status}
	if err := c.do(ctx, http.MethodPut, taskPath(id), body, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteTask marks task id completed.
func (c *Client) CompleteTask(ctx context.Context, id string) (*model.Task, error) {
	var out model.Task
	body := taskBody{Status: model.StatusCompleted}
	if err := c.do(ctx, http.MethodPatch, taskPath(id), body, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTask removes task id and returns the id the server acknowledged.
func (c *Client) DeleteTask(ctx context.Context, id string) (string, error) {
	var ack json.RawMessage
	if err := c.do(ctx, http.MethodDelete, taskPath(id), nil, true, &ack); err != nil {
		return "", err
	}
	if got := ackID(ack); got != "" {
		return got, nil
	}
	return id, nil
}

func taskPath(id string) string { return "/task/" + url.PathEscape(id) }

// ackID accepts {"id": "..."} or a bare JSON string.
func ackID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.ID
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path string, in any, auth bool, out any) error {
	op := method + " " + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		c.setToken(req)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("op", op),
			zap.String("request_id", reqID),
			zap.Error(err),
		)
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("request",
		zap.String("op", op),
		zap.String("request_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) setToken(req *http.Request) {
	if c.tokens == nil {
		return
	}
	tok := c.tokens.Token()
	if tok == "" {
		return
	}
	if strings.EqualFold(c.authHeader, "Authorization") {
		req.Header.Set("Authorization", "Bearer "+tok)
		return
	}
	req.Header.Set(c.authHeader, tok)
}

type errorBody struct {
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Field   string            `json:"field"`
	Errors  map[string]string `json:"errors"`
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	if json.Unmarshal(raw, &eb) != nil {
		eb.Message = strings.TrimSpace(string(raw))
	}
	msg := eb.Message
	if msg == "" {
		msg = eb.Error
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Status: resp.StatusCode, Message: msg}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		fields := map[string]string{}
		for k, v := range eb.Errors {
			fields[k] = v
		}
		if eb.Field != "" {
			fields[eb.Field] = msg
		}
		return &ValidationError{Status: resp.StatusCode, Message: msg, Fields: fields}
	default:
		return &ServerError{Status: resp.StatusCode, Message: msg}
	}
}
