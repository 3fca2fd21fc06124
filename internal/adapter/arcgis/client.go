// Package arcgis implements the stores and spatial operations on top of an
// ArcGIS Enterprise portal and its feature and geometry services.
package arcgis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// tokenLifetime is requested from generateToken, in minutes.
const tokenLifetime = 60

// Token error codes returned inside the error envelope.
const (
	codeInvalidToken  = 498
	codeTokenRequired = 499
)

// APIError is the error object ArcGIS REST endpoints return, usually with an
// HTTP 200 status.
type APIError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("arcgis error %d: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("arcgis error %d: %s", e.Code, e.Message)
}

type envelope struct {
	Error *APIError `json:"error"`
}

// Client issues authenticated requests against a portal and its services.
type Client struct {
	httpClient *http.Client
	portalURL  string
	username   string
	password   string
	clock      clockwork.Clock
	logger     *slog.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewClient creates a client. Requests are anonymous when username is empty.
func NewClient(portalURL, username, password string, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		portalURL:  strings.TrimRight(portalURL, "/"),
		username:   username,
		password:   password,
		clock:      clock,
		logger:     logger.With("component", "arcgis"),
	}
}

// accessToken returns a cached token, requesting a new one when it is
// missing or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.username == "" {
		return "", nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.clock.Now().Add(time.Minute).Before(c.expires) {
		return c.token, nil
	}

	form := url.Values{
		"username":   {c.username},
		"password":   {c.password},
		"client":     {"requestip"},
		"expiration": {fmt.Sprint(tokenLifetime)},
		"f":          {"json"},
	}
	var resp struct {
		Token   string `json:"token"`
		Expires int64  `json:"expires"`
	}
	if err := c.send(ctx, http.MethodPost, c.portalURL+"/sharing/rest/generateToken", form, &resp); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	if resp.Token == "" {
		return "", errors.New("generate token: empty token")
	}
	c.token = resp.Token
	c.expires = time.UnixMilli(resp.Expires)
	if resp.Expires == 0 {
		c.expires = c.clock.Now().Add(tokenLifetime * time.Minute)
	}
	c.logger.Debug("portal token issued", "expires", c.expires)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// get issues a GET with params and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	return c.call(ctx, http.MethodGet, endpoint, params, out)
}

// post issues a form-encoded POST and decodes the JSON response into out.
func (c *Client) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	return c.call(ctx, http.MethodPost, endpoint, form, out)
}

// call adds the token, sends the request and retries once with a fresh token
// when the service rejects the cached one.
func (c *Client) call(ctx context.Context, method, endpoint string, params url.Values, out any) error {
	for attempt := 0; ; attempt++ {
		values, err := c.withToken(ctx, params)
		if err != nil {
			return err
		}
		err = c.send(ctx, method, endpoint, values, out)
		var apiErr *APIError
		if attempt == 0 && c.username != "" && errors.As(err, &apiErr) &&
			(apiErr.Code == codeInvalidToken || apiErr.Code == codeTokenRequired) {
			c.logger.Info("token rejected, renewing", "endpoint", endpoint)
			c.invalidateToken()
			continue
		}
		return err
	}
}

func (c *Client) withToken(ctx context.Context, params url.Values) (url.Values, error) {
	values := url.Values{}
	for k, v := range params {
		values[k] = v
	}
	if values.Get("f") == "" {
		values.Set("f", "json")
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		values.Set("token", token)
	}
	return values, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, values url.Values, out any) error {
	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+values.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, truncate(body, 200))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		return env.Error
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// download streams endpoint into path.
func (c *Client) download(ctx context.Context, endpoint, path string) error {
	values, err := c.withToken(ctx, nil)
	if err != nil {
		return err
	}
	values.Del("f")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", req.URL.Path, resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// upload posts path as a multipart file field along with params.
func (c *Client) upload(ctx context.Context, endpoint, field, path string, params url.Values, out any) error {
	values, err := c.withToken(ctx, params)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, vs := range values {
		for _, v := range vs {
			if err := mw.WriteField(k, v); err != nil {
				return fmt.Errorf("write field %s: %w", k, err)
			}
		}
	}
	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
