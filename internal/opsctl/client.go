// Package opsctl implements matchctl, the operator CLI for the model
// lifecycle endpoints of the matching service.
package opsctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/internal/domain/types"
)

const defaultTimeout = 60 * time.Second

// Client calls the matching service over HTTP.
type Client struct {
	base string
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient returns a client for the service at base, e.g. http://localhost:9080.
func NewClient(base string, opts ...ClientOption) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Models lists every version of domain.
func (c *Client) Models(ctx context.Context, domain string) ([]model.ScoringModel, error) {
	var out []model.ScoringModel
	return out, c.do(ctx, http.MethodGet, modelsPath(domain, ""), nil, &out)
}

// Active returns the active model of domain.
func (c *Client) Active(ctx context.Context, domain string) (model.ScoringModel, error) {
	var out model.ScoringModel
	return out, c.do(ctx, http.MethodGet, modelsPath(domain, "active"), nil, &out)
}

// History returns the activation audit trail of domain.
func (c *Client) History(ctx context.Context, domain string) ([]model.ActivationRecord, error) {
	var out []model.ActivationRecord
	return out, c.do(ctx, http.MethodGet, modelsPath(domain, "history"), nil, &out)
}

// Train starts a training run and returns the published version.
func (c *Client) Train(ctx context.Context, domain string) (model.ScoringModel, error) {
	var out model.ScoringModel
	return out, c.do(ctx, http.MethodPost, modelsPath(domain, "train"), nil, &out)
}

// Activate switches the active version. expected, when set, must still be
// the active version on the server.
func (c *Client) Activate(ctx context.Context, domain string, version int64, expected *int64, force bool) (model.ScoringModel, error) {
	body := struct {
		Version        int64  `json:"version"`
		ExpectedActive *int64 `json:"expected_active,omitempty"`
		Force          bool   `json:"force,omitempty"`
	}{version, expected, force}
	var out model.ScoringModel
	return out, c.do(ctx, http.MethodPost, modelsPath(domain, "activate"), body, &out)
}

// Rollback restores the previously active version.
func (c *Client) Rollback(ctx context.Context, domain string) (model.ScoringModel, error) {
	var out model.ScoringModel
	return out, c.do(ctx, http.MethodPost, modelsPath(domain, "rollback"), nil, &out)
}

// RetrainStatus reports unconsumed feedback against threshold; 0 uses the
// server default.
func (c *Client) RetrainStatus(ctx context.Context, domain string, threshold int) (types.RetrainStatus, error) {
	p := modelsPath(domain, "retrain-status")
	if threshold > 0 {
		p += "?threshold=" + strconv.Itoa(threshold)
	}
	var out types.RetrainStatus
	return out, c.do(ctx, http.MethodGet, p, nil, &out)
}

func modelsPath(domain, action string) string {
	p := "/models/" + url.PathEscape(domain)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil {
			apiErr.Code, apiErr.Message = e.Code, e.Message
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
