// Package chessclient talks to a chessd instance: JSON calls over fasthttp
// and a websocket stream of game states.
package chessclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/Cheese-RelayChess/pkg/chessdto"
)

// APIError is a non-2xx answer carrying the server's error body.
type APIError struct {
	Status int
	chessdto.DomainError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chessd: status=%d code=%s: %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type Client struct {
	baseURL string
	http    *fasthttp.Client

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

func (c *Client) CreateGame(ctx context.Context, req chessdto.CreateGameRequest) (*chessdto.CreateGameResponse, error) {
	var resp chessdto.CreateGameResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/games", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) State(ctx context.Context, id string) (*chessdto.GameState, error) {
	var st chessdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodGet, gamePath(id, ""), nil, &st, true); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) LegalMoves(ctx context.Context, id, square string) (*chessdto.MovesResponse, error) {
	var resp chessdto.MovesResponse
	path := gamePath(id, "moves") + "?square=" + url.QueryEscape(square)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) PickUp(ctx context.Context, id, square string) (*chessdto.MovesResponse, error) {
	var resp chessdto.MovesResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, "pickup"), chessdto.SquareRequest{Square: square}, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Release drops the held piece. A promoting move comes back with
// State.AwaitingPromotion set and Applied false; answer it with Promote.
func (c *Client) Release(ctx context.Context, id, square string) (*chessdto.ReleaseResponse, error) {
	var resp chessdto.ReleaseResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, "release"), chessdto.SquareRequest{Square: square}, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Promote(ctx context.Context, id, piece string) (*chessdto.ReleaseResponse, error) {
	var resp chessdto.ReleaseResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, "promotion"), chessdto.PromotionRequest{Piece: piece}, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Move picks up from and releases on to.
func (c *Client) Move(ctx context.Context, id, from, to string) (*chessdto.ReleaseResponse, error) {
	if _, err := c.PickUp(ctx, id, from); err != nil {
		return nil, err
	}
	return c.Release(ctx, id, to)
}

func (c *Client) Abandon(ctx context.Context, id string) (*chessdto.GameState, error) {
	var st chessdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodDelete, gamePath(id, ""), nil, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

// BoardPNG fetches the rendered board.
func (c *Client) BoardPNG(ctx context.Context, id string) ([]byte, error) {
	return c.doRaw(ctx, fasthttp.MethodGet, gamePath(id, "board.png"), nil, true)
}

func (c *Client) Results(ctx context.Context, mode string, limit int) ([]*chessdto.GameRecord, error) {
	q := url.Values{}
	if mode != "" {
		q.Set("mode", mode)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/results"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp chessdto.HistoryResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Games, nil
}

func (c *Client) Stats(ctx context.Context, mode string) (*chessdto.StatsResponse, error) {
	path := "/stats"
	if mode != "" {
		path += "?mode=" + url.QueryEscape(mode)
	}
	var resp chessdto.StatsResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func gamePath(id, action string) string {
	p := "/games/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	body, err := c.doRaw(ctx, method, path, payload, retry)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, payload []byte, retry bool) ([]byte, error) {
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

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				return append([]byte(nil), resp.Body()...), nil
			}
			apiErr := decodeAPIError(status, resp.Body())
			if !shouldRetry(apiErr) {
				return nil, apiErr
			}
			lastErr = apiErr
		}
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, &apiErr.DomainError); err != nil || apiErr.Code == "" {
		apiErr.Code = "http_" + strconv.Itoa(status)
		apiErr.Message = truncate(string(body), 512)
	}
	return apiErr
}

func shouldRetry(e *APIError) bool {
	if e.Retryable {
		return true
	}
	switch e.Status {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
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
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
