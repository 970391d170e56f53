package iptrail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
)

// TokenSource supplies the current bearer credential.
// It is consulted on every request so a replaced token is honored immediately.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

// Token returns f().
func (f TokenFunc) Token() string { return f() }

// Client issues requests to the geolocation API.
// Every request carries the current bearer token, a JSON Accept header
// and a fresh X-Request-Id.
type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client

	tokens TokenSource
}

// NewClient returns a client for baseURL. A zero timeout uses the default of 15s.
// tokens may be nil for unauthenticated use.
func NewClient(baseURL string, timeout time.Duration, userAgent string, tokens TokenSource) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		UserAgent:  userAgent,
		HTTPClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
}

// Agent describes the user agent this client identifies as.
func (c *Client) Agent() AgentInfo {
	return ParseAgent(c.UserAgent)
}

// Authenticate exchanges email and password for an identity and a token.
func (c *Client) Authenticate(ctx context.Context, email, password string) (Identity, string, error) {
	body := map[string]string{"email": email, "password": password}

	var out struct {
		User  Identity `json:"user"`
		Token string   `json:"token"`
	}
	resp, err := c.do(ctx, http.MethodPost, "/login", body)
	if err != nil {
		return Identity{}, "", err
	}
	if !resp.ok() {
		if resp.status >= 400 && resp.status < 500 {
			return Identity{}, "", &messageError{kind: ErrInvalidCredentials, message: resp.message()}
		}
		return Identity{}, "", resp.upstreamError()
	}
	if err := resp.decode(&out); err != nil {
		return Identity{}, "", err
	}
	if out.Token == "" || out.User.isZero() {
		return Identity{}, "", &UpstreamError{StatusCode: resp.status, Message: "login response missing user or token"}
	}
	return out.User, out.Token, nil
}

// Register creates an account. It does not sign the user in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	resp, err := c.do(ctx, http.MethodPost, "/register", req)
	if err != nil {
		return &GeneralError{Message: "Registration failed", Err: err}
	}
	if resp.ok() {
		return nil
	}

	var payload struct {
		Errors  json.RawMessage `json:"errors"`
		Message string          `json:"message"`
	}
	_ = json.Unmarshal(resp.body, &payload)

	if fields, ok := parseFieldErrors(payload.Errors); ok {
		return &ValidationError{Fields: fields}
	}

	msg := payload.Message
	if msg == "" {
		msg = "Registration failed"
	}
	return &GeneralError{Message: msg, Err: resp.upstreamError()}
}

// FetchOwnGeolocation resolves the caller's own public address.
func (c *Client) FetchOwnGeolocation(ctx context.Context) (GeoRecord, error) {
	var rec GeoRecord
	if err := c.call(ctx, http.MethodGet, "/ip/my", nil, &rec); err != nil {
		return GeoRecord{}, fmt.Errorf("fetch own geolocation: %w", err)
	}
	return rec, nil
}

// SearchIP resolves ip, which must be a strict dotted-quad IPv4 address.
func (c *Client) SearchIP(ctx context.Context, ip string) (GeoRecord, error) {
	if !IsValidIPv4(ip) {
		return GeoRecord{}, fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalidInput, ip)
	}

	var rec GeoRecord
	if err := c.call(ctx, http.MethodPost, "/ip/search", map[string]string{"ip": ip}, &rec); err != nil {
		return GeoRecord{}, fmt.Errorf("search %s: %w", ip, err)
	}
	return rec, nil
}

// FetchHistory returns the user's lookups in server order.
// Both a bare array and a {"data": [...]} envelope are accepted.
func (c *Client) FetchHistory(ctx context.Context) ([]HistoryEntry, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/ip/history", nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	entries, err := decodeHistory(raw)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return entries, nil
}

// DeleteHistory removes the given entries. Any error response other than
// 401 is reported as ErrPartialFailure: the caller must re-fetch.
func (c *Client) DeleteHistory(ctx context.Context, ids []ID) error {
	if len(ids) == 0 {
		return nil
	}

	resp, err := c.do(ctx, http.MethodDelete, "/ip/history", map[string][]ID{"ids": ids})
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if resp.ok() {
		return nil
	}
	if resp.status == http.StatusUnauthorized {
		return fmt.Errorf("delete history: %w", resp.unauthorizedError())
	}
	return fmt.Errorf("delete history: %w: %w", ErrPartialFailure, resp.upstreamError())
}

// call performs an authenticated request and decodes a 2xx body into out.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if resp.status == http.StatusUnauthorized {
		return resp.unauthorizedError()
	}
	if !resp.ok() {
		return resp.upstreamError()
	}
	return resp.decode(out)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode request: %v", ErrInvalidInput, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: read body: %w", ErrNetwork, method, path, err)
	}
	return &response{status: res.StatusCode, body: raw}, nil
}

type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r *response) decode(out any) error {
	if out == nil || len(bytes.TrimSpace(r.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.body, out); err != nil {
		return &UpstreamError{StatusCode: r.status, Message: "malformed response: " + err.Error()}
	}
	return nil
}

// message extracts the "message" field of an error payload, if any.
func (r *response) message() string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.body, &payload); err != nil {
		return ""
	}
	return payload.Message
}

func (r *response) upstreamError() error {
	return &UpstreamError{StatusCode: r.status, Message: r.message()}
}

func (r *response) unauthorizedError() error {
	if msg := r.message(); msg != "" {
		return &messageError{kind: ErrUnauthorized, message: msg}
	}
	return ErrUnauthorized
}

// parseFieldErrors accepts {"field": ["msg", ...]} and {"field": "msg"}.
// Any other shape is reported as not ok.
func parseFieldErrors(raw json.RawMessage) (map[string][]string, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		return nil, false
	}

	out := make(map[string][]string, len(fields))
	for name, value := range fields {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			out[name] = list
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			out[name] = []string{single}
			continue
		}
		return nil, false
	}
	return out, true
}

func decodeHistory(raw json.RawMessage) ([]HistoryEntry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []HistoryEntry{}, nil
	}

	if raw[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, &UpstreamError{StatusCode: http.StatusOK, Message: "malformed history: " + err.Error()}
		}
		return decodeHistory(envelope.Data)
	}

	var entries []HistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &UpstreamError{StatusCode: http.StatusOK, Message: "malformed history: " + err.Error()}
	}
	if err := uniqueIDs(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func uniqueIDs(entries []HistoryEntry) error {
	seen := make(map[ID]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			return &UpstreamError{StatusCode: http.StatusOK, Message: fmt.Sprintf("malformed history: duplicate id %q", e.ID)}
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}
