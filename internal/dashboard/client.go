package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiPrefix = "/api/v1"

// Client is a session against the dashboard platform's REST API. Login must
// succeed before any other call.
type Client struct {
	base  string
	http  *http.Client
	token string
	csrf  string
}

// NewClient creates a client for the platform at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]any{
		"username": username,
		"password": password,
		"provider": "db",
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, http.MethodPost, "/security/login", body, &out); err != nil {
		return fmt.Errorf("%w: %w", ErrLogin, err)
	}
	if out.AccessToken == "" {
		return fmt.Errorf("%w: %w", ErrLogin, ErrNoToken)
	}

	c.token = out.AccessToken
	return nil
}

// FetchCSRF retrieves the token sent with every mutating request.
func (c *Client) FetchCSRF(ctx context.Context) error {
	var out struct {
		Result string `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/security/csrf_token/", nil, &out); err != nil {
		return fmt.Errorf("csrf token: %w", err)
	}
	if out.Result == "" {
		return fmt.Errorf("csrf token: %w", ErrNoToken)
	}

	c.csrf = out.Result
	return nil
}

// Find returns the id of the first resource whose field equals value.
func (c *Client) Find(ctx context.Context, resource, field, value string) (int, bool, error) {
	q := fmt.Sprintf("(filters:!((col:%s,opr:eq,value:%s)))", field, risonString(value))
	path := fmt.Sprintf("/%s/?q=%s", resource, url.QueryEscape(q))

	var out struct {
		Result []map[string]any `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, false, fmt.Errorf("find %s %q: %w", resource, value, err)
	}

	for _, r := range out.Result {
		if v, _ := r[field].(string); v != value {
			continue
		}
		if id, ok := r["id"].(float64); ok {
			return int(id), true, nil
		}
	}
	return 0, false, nil
}

// Create posts body to resource and returns the new id.
func (c *Client) Create(ctx context.Context, resource string, body any) (int, error) {
	var out struct {
		ID int `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/"+resource+"/", body, &out); err != nil {
		return 0, fmt.Errorf("create %s: %w", resource, err)
	}
	return out.ID, nil
}

// Update puts body to the resource with the given id.
func (c *Client) Update(ctx context.Context, resource string, id int, body any) error {
	path := fmt.Sprintf("/%s/%d", resource, id)
	if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("update %s %d: %w", resource, id, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+apiPrefix+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRFToken", c.csrf)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: %d %s",
			ErrStatus, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// risonString quotes s for a rison query parameter.
func risonString(s string) string {
	r := strings.NewReplacer("!", "!!", "'", "!'")
	return "'" + r.Replace(s) + "'"
}
