package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/miosa/chatai/session"
)

// Client talks to the Gateway. Authenticated calls read the access token
// from the session store when the request is built.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	session session.Store
}

// New returns a client for baseURL. A zero timeout means requests wait as
// long as their context allows.
func New(baseURL string, store session.Store, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		session:    store,
	}
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	resp, err := c.postJSON(ctx, "/auth/login", "", req)
	if err != nil {
		return nil, transportError(OpLogin, err)
	}
	defer resp.Body.Close()
	if !success(resp) {
		return nil, c.parseError(OpLogin, resp)
	}
	var result TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, decodeError(OpLogin, resp, err)
	}
	return &result, nil
}

func (c *Client) Signup(ctx context.Context, req SignupRequest) (*TokenResponse, error) {
	resp, err := c.postJSON(ctx, "/auth/signup", "", req)
	if err != nil {
		return nil, transportError(OpSignup, err)
	}
	defer resp.Body.Close()
	if !success(resp) {
		return nil, c.parseError(OpSignup, resp)
	}
	var result TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, decodeError(OpSignup, resp, err)
	}
	return &result, nil
}

// Refresh exchanges refreshToken for a new access token. It does not touch
// the session store.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.postJSON(ctx, "/auth/refresh", refreshToken, struct{}{})
	if err != nil {
		return nil, transportError(OpRefresh, err)
	}
	defer resp.Body.Close()
	if !success(resp) {
		return nil, c.parseError(OpRefresh, resp)
	}
	var result TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, decodeError(OpRefresh, resp, err)
	}
	if result.AccessToken == "" {
		return nil, &GatewayError{Op: OpRefresh, Status: resp.StatusCode, Message: OpRefresh.Fallback()}
	}
	return &result, nil
}

// StartConversation mints a new conversation id.
func (c *Client) StartConversation(ctx context.Context) (int64, error) {
	resp, err := c.authed(ctx, OpStart, func(token string) (*http.Response, error) {
		return c.postJSON(ctx, "/chat/start_conversation", token, struct{}{})
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if !success(resp) {
		return 0, c.parseError(OpStart, resp)
	}
	var result StartConversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, decodeError(OpStart, resp, err)
	}
	return result.ConversationNumber, nil
}

// SendMessage submits a prompt and waits for the model's completed reply.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (*Message, error) {
	resp, err := c.authed(ctx, OpSend, func(token string) (*http.Response, error) {
		return c.postJSON(ctx, "/chat/", token, req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if !success(resp) {
		return nil, c.parseError(OpSend, resp)
	}
	var result Message
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, decodeError(OpSend, resp, err)
	}
	return &result, nil
}

// History returns every message of conversation id, oldest first.
func (c *Client) History(ctx context.Context, id int64) ([]Message, error) {
	path := "/chat/history?" + url.Values{"conversation_number": {strconv.FormatInt(id, 10)}}.Encode()
	resp, err := c.authed(ctx, OpHistory, func(token string) (*http.Response, error) {
		return c.get(ctx, path, token)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if !success(resp) {
		return nil, c.parseError(OpHistory, resp)
	}
	var result []Message
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, decodeError(OpHistory, resp, err)
	}
	return result, nil
}

// ListConversations returns the ids of the user's conversations.
func (c *Client) ListConversations(ctx context.Context) ([]int64, error) {
	resp, err := c.authed(ctx, OpListSessions, func(token string) (*http.Response, error) {
		return c.get(ctx, "/chat/conversations", token)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if !success(resp) {
		return nil, c.parseError(OpListSessions, resp)
	}
	var result []int64
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, decodeError(OpListSessions, resp, err)
	}
	return result, nil
}

// authed runs do with the current access token. A 401 triggers one refresh
// and one retry with the new token; a failed refresh surfaces as
// ErrSessionExpired. The returned response may still be non-2xx.
func (c *Client) authed(ctx context.Context, op Op, do func(token string) (*http.Response, error)) (*http.Response, error) {
	token := c.session.AccessToken()
	if token == "" {
		return nil, ErrNoSession
	}
	resp, err := do(token)
	if err != nil {
		return nil, transportError(op, err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	expired := c.parseError(op, resp)
	resp.Body.Close()

	refreshToken := c.session.RefreshToken()
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, expired)
	}
	refreshed, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		log.Warn().Err(err).Str("op", string(op)).Msg("token refresh failed")
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, expired)
	}
	if err := c.session.SetAccessToken(refreshed.AccessToken); err != nil {
		return nil, fmt.Errorf("save refreshed token: %w", err)
	}
	log.Debug().Str("op", string(op)).Msg("access token refreshed, retrying")

	resp, err = do(refreshed.AccessToken)
	if err != nil {
		return nil, transportError(op, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		defer resp.Body.Close()
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, c.parseError(op, resp))
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, token)
	return c.do(req)
}

func (c *Client) postJSON(ctx context.Context, path, token string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req, token)
	return c.do(req)
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	ev := log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Dur("elapsed", time.Since(start))
	if err != nil {
		ev.Err(err).Msg("gateway request failed")
		return nil, err
	}
	ev.Int("status", resp.StatusCode).Msg("gateway request")
	return resp, nil
}

func (c *Client) parseError(op Op, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := op.Fallback()
	var apiErr ErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &GatewayError{
		Op:      op,
		Status:  resp.StatusCode,
		Message: msg,
		Err:     fmt.Errorf("API %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
	}
}

func transportError(op Op, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &GatewayError{Op: op, Message: op.Fallback(), Err: err}
}

func decodeError(op Op, resp *http.Response, err error) error {
	return &GatewayError{
		Op:      op,
		Status:  resp.StatusCode,
		Message: op.Fallback(),
		Err:     fmt.Errorf("decode %s: %w", op, err),
	}
}

func success(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
