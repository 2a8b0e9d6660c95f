// Package platform restarts sites hosted on managed platforms through their
// management APIs.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/repair"
)

// Default API base URLs.
const (
	DefaultRailwayURL = "https://backboard.railway.app/graphql/v2"
	DefaultVercelURL  = "https://api.vercel.com"
	DefaultNetlifyURL = "https://api.netlify.com/api/v1"
	DefaultRenderURL  = "https://api.render.com/v1"
	DefaultHerokuURL  = "https://api.heroku.com"

	defaultTimeout = 30 * time.Second
)

// Config holds platform adapter configuration. Empty URLs use the public APIs.
type Config struct {
	Timeout    time.Duration
	RailwayURL string
	VercelURL  string
	NetlifyURL string
	RenderURL  string
	HerokuURL  string
}

func (c *Config) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	c.RailwayURL = orDefault(c.RailwayURL, DefaultRailwayURL)
	c.VercelURL = orDefault(c.VercelURL, DefaultVercelURL)
	c.NetlifyURL = orDefault(c.NetlifyURL, DefaultNetlifyURL)
	c.RenderURL = orDefault(c.RenderURL, DefaultRenderURL)
	c.HerokuURL = orDefault(c.HerokuURL, DefaultHerokuURL)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return strings.TrimRight(v, "/")
}

// Adapter is a repair.Adapter that can also verify its credentials.
type Adapter interface {
	repair.Adapter
	repair.Verifier
}

// NewAdapters returns one adapter per supported platform.
func NewAdapters(config Config) []Adapter {
	config.setDefaults()
	c := &client{httpClient: &http.Client{Timeout: config.Timeout}}
	return []Adapter{
		&Railway{client: c, url: config.RailwayURL},
		&Vercel{client: c, baseURL: config.VercelURL},
		&Netlify{client: c, baseURL: config.NetlifyURL},
		&Render{client: c, baseURL: config.RenderURL},
		&Heroku{client: c, baseURL: config.HerokuURL},
	}
}

type client struct {
	httpClient *http.Client
}

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return repair.IsSuccess(r.status)
}

func (r response) describe(what string) string {
	return repair.ResponseOutput(what, r.status, r.body)
}

// call sends an authenticated request. payload, when not nil, is sent as JSON.
func (c *client) call(ctx context.Context, method, url, token string, payload any, header http.Header) (response, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return response{}, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, repair.MaxOutputBytes))
	if err != nil {
		return response{}, fmt.Errorf("read response: %w", err)
	}
	return response{status: resp.StatusCode, body: body}, nil
}

func notConfigured(platform, field string) string {
	return fmt.Sprintf("%s %s not configured", platform, field)
}

func requestFailed(platform string, err error) string {
	return fmt.Sprintf("%s API request failed: %v", platform, err)
}

// checkToken reports a missing platform token.
func checkToken(platform string, creds domain.Credentials) (string, bool) {
	if creds.PlatformToken == "" {
		return notConfigured(platform, "API token"), false
	}
	return "", true
}
