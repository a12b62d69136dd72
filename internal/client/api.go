package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hive/internal/domain"
	"hive/internal/utils"

	"go.uber.org/zap"
)

const (
	DefaultFetchTimeout  = 15 * time.Second
	DefaultExportTimeout = 2 * time.Minute

	// StatusCSRFExpired is the stale-CSRF status some deployments answer with.
	StatusCSRFExpired = 419
)

// TokenStore keeps the bearer token between calls.
type TokenStore interface {
	Token() string
	SetToken(token string)
	Clear()
}

// MemoryTokenStore is a TokenStore held in process memory.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

func (s *MemoryTokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryTokenStore) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *MemoryTokenStore) Clear() { s.SetToken("") }

// CSRFRefresher fetches a fresh CSRF token after a 419.
type CSRFRefresher func(ctx context.Context) (string, error)

// Client talks to the hive API.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens TokenStore
	tenant string

	onUnauthorized func()
	refreshCSRF    CSRFRefresher

	csrfMu sync.Mutex
	csrf   string

	FetchTimeout  time.Duration
	ExportTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.http = hc
		return nil
	}
}

// WithTokenStore sets where the bearer token is kept.
func WithTokenStore(s TokenStore) Option {
	return func(c *Client) error {
		c.tokens = s
		return nil
	}
}

// WithTenant sends X-Tenant on every request.
func WithTenant(tenant string) Option {
	return func(c *Client) error {
		c.tenant = strings.TrimSpace(tenant)
		return nil
	}
}

// WithUnauthorizedHandler is called after a 401 has cleared the token.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) error {
		c.onUnauthorized = fn
		return nil
	}
}

// WithCSRFRefresher enables one retry after a 419.
func WithCSRFRefresher(fn CSRFRefresher) Option {
	return func(c *Client) error {
		c.refreshCSRF = fn
		return nil
	}
}

// WithTimeouts overrides the fetch and export timeouts.
func WithTimeouts(fetch, export time.Duration) Option {
	return func(c *Client) error {
		if fetch > 0 {
			c.FetchTimeout = fetch
		}
		if export > 0 {
			c.ExportTimeout = export
		}
		return nil
	}
}

// New returns a client for the API rooted at addr, e.g. http://localhost:8080.
func New(addr string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(addr, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("address %q must include scheme and host", addr)
	}
	c := &Client{
		base:          u,
		http:          &http.Client{},
		tokens:        &MemoryTokenStore{},
		FetchTimeout:  DefaultFetchTimeout,
		ExportTimeout: DefaultExportTimeout,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Tokens exposes the token store.
func (c *Client) Tokens() TokenStore { return c.tokens }

// APIError is a non-2xx response.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	Retryable bool
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s (status %d, request %s)", msg, e.Status, e.RequestID)
	}
	return fmt.Sprintf("%s (status %d)", msg, e.Status)
}

// Unwrap maps the status onto the matching domain error so callers can
// use the domain.IsX helpers.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ValidationError{Msg: e.Message}
	case http.StatusUnauthorized:
		return domain.UnauthorizedError{Msg: e.Message}
	case http.StatusForbidden:
		return domain.ForbiddenError{Msg: e.Message}
	case http.StatusNotFound:
		return domain.NotFoundError{}
	case http.StatusServiceUnavailable:
		return domain.SearchUnavailableError{}
	}
	return nil
}

// User is the authenticated user as returned by login and /user.
type User struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Role     string   `json:"role"`
	Roles    []string `json:"roles"`
	Status   string   `json:"status"`
	IsActive bool     `json:"is_active"`
}

// Login exchanges credentials for a token and stores it.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	body := map[string]string{"email": email, "password": password}
	resp, err := c.do(ctx, http.MethodPost, "/api/login", nil, body, c.FetchTimeout)
	if err != nil {
		return User{}, err
	}
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return User{}, fmt.Errorf("decode login: %w", err)
	}
	if out.Token == "" {
		return User{}, errors.New("login response carried no token")
	}
	c.tokens.SetToken(out.Token)
	return out.User, nil
}

// Logout revokes the token on the server and forgets it locally. The local
// token is dropped even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.tokens.Clear()
	if c.tokens.Token() == "" {
		return nil
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/logout", nil, nil, c.FetchTimeout)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/user", nil, nil, c.FetchTimeout)
	if err != nil {
		return User{}, err
	}
	defer resp.Body.Close()
	var out struct {
		User User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	return out.User, nil
}

// List fetches one page of resource.
func (c *Client) List(ctx context.Context, resource string, q domain.Query) (ListResult, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/"+resource, q.Values(), nil, c.FetchTimeout)
	if err != nil {
		return ListResult{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ListResult{}, err
	}
	return DecodeList(body, resource)
}

// File is a downloaded export.
type File struct {
	Name string
	// Suggested is true when Name came from the server.
	Suggested   bool
	ContentType string
	Body        []byte
	Truncated   bool
}

// ExportFile downloads a file format export.
func (c *Client) ExportFile(ctx context.Context, resource string, kind domain.FormatKind, q domain.Query) (File, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/"+resource+"/export", exportValues(kind, q), nil, c.ExportTimeout)
	if err != nil {
		return File{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return File{}, fmt.Errorf("read export: %w", err)
	}
	disposition := resp.Header.Get("Content-Disposition")
	return File{
		Name:        FilenameFrom(disposition, kind, time.Now()),
		Suggested:   hasFilename(disposition),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Truncated:   resp.Header.Get("X-Export-Truncated") == "true",
	}, nil
}

// PayloadColumn is one column of a copy/print payload.
type PayloadColumn struct {
	Key    string `json:"key"`
	Header string `json:"header"`
}

// Payload is the copy/print export body.
type Payload struct {
	Columns   []PayloadColumn `json:"columns"`
	Data      []Row           `json:"data"`
	Truncated bool            `json:"truncated"`
}

// ExportPayload fetches a copy or print export.
func (c *Client) ExportPayload(ctx context.Context, resource string, kind domain.FormatKind, q domain.Query) (Payload, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/"+resource+"/export", exportValues(kind, q), nil, c.ExportTimeout)
	if err != nil {
		return Payload{}, err
	}
	defer resp.Body.Close()

	var p Payload
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("decode export: %w", err)
	}
	if resp.Header.Get("X-Export-Truncated") == "true" {
		p.Truncated = true
	}
	return p, nil
}

func exportValues(kind domain.FormatKind, q domain.Query) url.Values {
	q = q.Clone()
	q.Page, q.PageSize = 0, 0
	v := q.Values()
	v.Set("type", kind.WireType())
	return v
}

// FilenameFrom reads the filename of a Content-Disposition header, falling
// back to export_<timestamp>.<ext>.
func FilenameFrom(disposition string, kind domain.FormatKind, now time.Time) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(params["filename"]), "\\", "/"))
		if name != "." && name != "/" && name != ".." {
			return name
		}
	}
	return fmt.Sprintf("export_%s.%s", utils.FileStamp(now), kind.Extension())
}

func hasFilename(disposition string) bool {
	_, params, err := mime.ParseMediaType(disposition)
	return err == nil && strings.TrimSpace(params["filename"]) != ""
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, timeout time.Duration) (*http.Response, error) {
	resp, err := c.send(ctx, method, path, query, body, timeout)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == StatusCSRFExpired && c.refreshCSRF != nil {
		resp.Body.Close()
		token, err := c.refreshCSRF(ctx)
		if err != nil {
			return nil, fmt.Errorf("refresh csrf token: %w", err)
		}
		c.csrfMu.Lock()
		c.csrf = token
		c.csrfMu.Unlock()
		resp, err = c.send(ctx, method, path, query, body, timeout)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	apiErr := decodeAPIError(resp)
	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Clear()
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	}
	utils.L().Debug("api error",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", apiErr.Status),
		zap.String("request_id", apiErr.RequestID),
	)
	return nil, apiErr
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any, timeout time.Duration) (*http.Response, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		// The body is read by the caller, so the cancel is tied to it.
		req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
		if err != nil {
			cancel()
			return nil, err
		}
		resp, err := c.http.Do(c.decorate(req, body != nil))
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, err
	}
	return c.http.Do(c.decorate(req, body != nil))
}

func (c *Client) decorate(req *http.Request, hasBody bool) *http.Request {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.tokens.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if c.tenant != "" {
		req.Header.Set("X-Tenant", c.tenant)
	}
	c.csrfMu.Lock()
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	c.csrfMu.Unlock()
	return req
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func decodeAPIError(resp *http.Response) *APIError {
	e := &APIError{Status: resp.StatusCode, RequestID: resp.Header.Get("X-Request-ID")}
	var body struct {
		Error     string `json:"error"`
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
		Details   struct {
			Retryable bool `json:"retryable"`
		} `json:"details"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &body) == nil {
		e.Code = body.Code
		e.Message = utils.Fallback(body.Message, body.Error)
		if body.RequestID != "" {
			e.RequestID = body.RequestID
		}
		e.Retryable = body.Details.Retryable
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		e.Retryable = true
	}
	return e
}
