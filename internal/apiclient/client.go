// Package apiclient talks to a running chess server: the bot API over
// fasthttp and live rooms over WebSocket.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-chess-server/pkg/chessdto"
	"github.com/valyala/fasthttp"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 30 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 30 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status int
	chessdto.DomainError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chess api error: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
}

func (c *Client) StartGame(ctx context.Context, req chessdto.StartRequest) (*chessdto.StartResponse, error) {
	var resp chessdto.StartResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/chess/bot/start", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Move is not retried: a lost response may still have advanced the game.
func (c *Client) Move(ctx context.Context, gameID, move string) (*chessdto.MoveResponse, error) {
	var resp chessdto.MoveResponse
	req := chessdto.MoveRequest{GameID: gameID, Move: move}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/chess/bot/move", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Resume(ctx context.Context, gameID string) (*chessdto.MoveResponse, error) {
	var resp chessdto.MoveResponse
	req := chessdto.ResumeRequest{GameID: gameID}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/chess/bot/resume", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) LoadGame(ctx context.Context, gameID string) (*chessdto.LoadResponse, error) {
	var resp chessdto.LoadResponse
	req := chessdto.LoadRequest{GameID: gameID}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/chess/bot/load", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ActiveGames(ctx context.Context, userID int64) ([]chessdto.ActiveGame, error) {
	var resp []chessdto.ActiveGame
	path := "/chess/bot/active?user_id=" + strconv.FormatInt(userID, 10)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CheckUser(ctx context.Context, userID int64) (*chessdto.CheckUserResponse, error) {
	var resp chessdto.CheckUserResponse
	req := chessdto.CheckUserRequest{UserID: userID}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/users/check", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

type BoardOptions struct {
	Flip     bool
	LastMove string
	Size     int
}

// BoardPNG fetches the rendered board for fen.
func (c *Client) BoardPNG(ctx context.Context, fen string, opts BoardOptions) ([]byte, error) {
	q := url.Values{}
	q.Set("fen", fen)
	if opts.Flip {
		q.Set("flip", "true")
	}
	if opts.LastMove != "" {
		q.Set("last", opts.LastMove)
	}
	if opts.Size > 0 {
		q.Set("size", strconv.Itoa(opts.Size))
	}

	var png []byte
	err := c.do(ctx, fasthttp.MethodGet, "/chess/board.png?"+q.Encode(), nil, true, func(resp *fasthttp.Response) error {
		png = append([]byte(nil), resp.Body()...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return png, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	var payload []byte
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = raw
	}
	return c.do(ctx, method, path, payload, retry, func(resp *fasthttp.Response) error {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, retry bool, onOK func(*fasthttp.Response) error) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	attempts := 1
	if retry && c.retryMax > 0 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			apiErr := decodeError(status, resp.Body())
			if attempt == attempts || !shouldRetry(status, apiErr) {
				return apiErr
			}
			lastErr = apiErr
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}
		return onOK(resp)
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func decodeError(status int, body []byte) *APIError {
	var env chessdto.ErrorResponse
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Code != "" {
		return &APIError{Status: status, DomainError: env.Error}
	}
	return &APIError{Status: status, DomainError: chessdto.DomainError{Message: truncate(string(body), 512)}}
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond // 100ms, 200ms ...
}

func shouldRetry(status int, apiErr *APIError) bool {
	if apiErr != nil && apiErr.Retryable {
		return true
	}
	switch status {
	case 500, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
