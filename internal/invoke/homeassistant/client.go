// Package homeassistant invokes mechanisms as Home Assistant service calls
// over its REST API (POST /api/services/<domain>/<service>).
package homeassistant

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
	"sync"
	"time"

	"uninotifier/internal/invoke"
	logx "uninotifier/pkg/logx"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "uninotifier/1"
)

// Config configures the client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Domains restricts which domains are served. Empty means "whatever Home
	// Assistant reports as loaded" (after Refresh), or everything before that.
	Domains []string
}

// Client is an invoke.Invoker backed by the Home Assistant REST API.
type Client struct {
	cfg  Config
	base *url.URL
	http *http.Client
	log  logx.Logger

	mu         sync.RWMutex
	components map[string]struct{} // nil until Refresh succeeds
	allowed    map[string]struct{}
}

// New validates cfg and returns a client.
func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("homeassistant: base_url is required")
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("homeassistant: invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("homeassistant: base_url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("homeassistant: base_url must include a host")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{
		cfg:  cfg,
		base: u,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
	if len(cfg.Domains) > 0 {
		c.allowed = make(map[string]struct{}, len(cfg.Domains))
		for _, d := range cfg.Domains {
			c.allowed[strings.TrimSpace(d)] = struct{}{}
		}
	}
	return c, nil
}

// Available implements invoke.Availability.
func (c *Client) Available(domain string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.allowed != nil {
		_, ok := c.allowed[domain]
		return ok
	}
	if c.components == nil {
		return true
	}
	_, ok := c.components[domain]
	return ok
}

// Refresh loads the list of components Home Assistant has loaded. Failures
// leave the previous list in place.
func (c *Client) Refresh(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/components", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("homeassistant: components: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("homeassistant: components: http %d", resp.StatusCode)
	}
	var list []string
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("homeassistant: components: %w", err)
	}
	comps := make(map[string]struct{}, len(list))
	for _, name := range list {
		// Platform entries look like "notify.mobile_app"; the domain is the first part.
		domain, _, _ := strings.Cut(name, ".")
		comps[domain] = struct{}{}
	}
	c.mu.Lock()
	c.components = comps
	c.mu.Unlock()
	c.log.Debug("components refreshed", logx.Int("count", len(comps)))
	return nil
}

// Invoke implements invoke.Invoker.
func (c *Client) Invoke(ctx context.Context, call invoke.Call) error {
	body, err := json.Marshal(call.Payload)
	if err != nil {
		return fmt.Errorf("homeassistant: encode payload: %w", err)
	}
	path := "/api/services/" + url.PathEscape(call.Mechanism.Domain) + "/" + url.PathEscape(call.Mechanism.Action)
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("homeassistant: %s: %w", call.Mechanism, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("homeassistant: %s: http %d: %s", call.Mechanism, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	c.log.Debug("service called",
		logx.String("service", call.Mechanism.String()),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, err
	}
	if tok := strings.TrimSpace(c.cfg.Token); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}
