// Package optimizer talks to the external optimizer service that produces
// Pareto fronts and design assets.
package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paretodesk/internal/design"
	"paretodesk/internal/types"
)

// ErrService wraps every failure reported by the optimizer service itself.
var ErrService = errors.New("optimizer service error")

// Result is one optimization run as returned by the service.
type Result struct {
	Records     []design.Record `json:"pareto_front"`
	Generations int             `json:"n_generations"`
	Evaluations int             `json:"n_evaluations"`
	Cached      bool            `json:"-"`
}

type envelope struct {
	Success bool    `json:"success"`
	Results *Result `json:"results"`
	Cached  bool    `json:"cached"`
	Error   string  `json:"error"`
}

// Asset is a downloaded design archive. The caller closes Body.
type Asset struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
}

type Client struct {
	http *http.Client
	base string
}

func New(base string, timeout time.Duration) *Client {
	if base == "" {
		base = "http://localhost:5000"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
		base: strings.TrimRight(base, "/"),
	}
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.base
}

// Optimize runs a full optimization. It can take minutes.
func (c *Client) Optimize(ctx context.Context, req types.OptimizeRequest) (*Result, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return c.results(ctx, http.MethodPost, "/api/optimize", bytes.NewReader(b))
}

// Demo fetches the precomputed demo front.
func (c *Client) Demo(ctx context.Context) (*Result, error) {
	return c.results(ctx, http.MethodGet, "/api/demo", nil)
}

func (c *Client) results(ctx context.Context, method, path string, body io.Reader) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	if resp.StatusCode >= 300 {
		if decodeErr == nil && env.Error != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrService, resp.Status, env.Error)
		}
		return nil, fmt.Errorf("%w: %s", ErrService, resp.Status)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode optimizer response: %w", decodeErr)
	}
	if !env.Success || env.Results == nil {
		msg := env.Error
		if msg == "" {
			msg = "no results"
		}
		return nil, fmt.Errorf("%w: %s", ErrService, msg)
	}
	env.Results.Cached = env.Cached
	return env.Results, nil
}

// Download fetches the asset archive for one design.
func (c *Client) Download(ctx context.Context, designID int) (*Asset, error) {
	url := fmt.Sprintf("%s/api/designs/%d/download", c.base, designID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: download design %d: %s: %s", ErrService, designID, resp.Status, strings.TrimSpace(string(msg)))
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Asset{
		Body:        resp.Body,
		ContentType: ct,
		Filename:    fmt.Sprintf("design_%d.zip", designID),
	}, nil
}
