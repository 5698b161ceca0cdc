package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brewkit/brewmon/internal/machine"
	"github.com/brewkit/brewmon/internal/monitor"
	"github.com/brewkit/brewmon/internal/store"
)

// Client provides HTTP client functionality to communicate with the brewmon daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new brewmon API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/monitor/status", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

// StartMonitoring enables the delivery poll loop.
func (c *Client) StartMonitoring(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/monitor/start", nil, nil)
}

// StopMonitoring disables the delivery poll loop.
func (c *Client) StopMonitoring(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/monitor/stop", nil, nil)
}

// MonitorStatus reports whether the poll loop is enabled and when it last ran.
func (c *Client) MonitorStatus(ctx context.Context) (monitor.Status, error) {
	var st monitor.Status
	err := c.do(ctx, http.MethodGet, "/monitor/status", nil, &st)
	return st, err
}

// MachineInfo returns the machine identity block.
func (c *Client) MachineInfo(ctx context.Context) (machine.Info, error) {
	var info machine.Info
	err := c.do(ctx, http.MethodGet, "/machine/info", nil, &info)
	return info, err
}

// MachineStatus returns the per-group delivery status.
func (c *Client) MachineStatus(ctx context.Context) (map[int]machine.GroupStatus, error) {
	var sts map[int]machine.GroupStatus
	err := c.do(ctx, http.MethodGet, "/machine/status", nil, &sts)
	return sts, err
}

// MachineHealth runs a full diagnostic sweep on the daemon side.
func (c *Client) MachineHealth(ctx context.Context) (machine.Health, error) {
	var h machine.Health
	err := c.do(ctx, http.MethodGet, "/machine/health", nil, &h)
	return h, err
}

// Connect opens the daemon's serial line to the machine.
func (c *Client) Connect(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/machine/connect", nil, nil)
}

// Disconnect closes the daemon's serial line.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/machine/disconnect", nil, nil)
}

type deliverRequest struct {
	CoffeeType string `json:"coffee_type"`
	Group      int    `json:"group"`
}

type groupRequest struct {
	Group int `json:"group"`
}

// Deliver starts an API-triggered delivery and returns the created record.
func (c *Client) Deliver(ctx context.Context, coffeeType string, group int) (store.Record, error) {
	var rec store.Record
	err := c.do(ctx, http.MethodPost, "/deliveries", deliverRequest{CoffeeType: coffeeType, Group: group}, &rec)
	return rec, err
}

// StopDelivery stops the running delivery on a group.
func (c *Client) StopDelivery(ctx context.Context, group int) error {
	return c.do(ctx, http.MethodPost, "/deliveries/stop", groupRequest{Group: group}, nil)
}

// Purge starts a purge cycle on a group.
func (c *Client) Purge(ctx context.Context, group int) error {
	return c.do(ctx, http.MethodPost, "/purge", groupRequest{Group: group}, nil)
}

// HistoryResult is the response of the deliveries listing endpoint.
type HistoryResult struct {
	Records []store.Record `json:"records"`
	Count   int            `json:"count"`
}

// History lists delivery records. Zero values mean "any"/"no limit".
func (c *Client) History(ctx context.Context, trigger string, group, limit int) (HistoryResult, error) {
	q := url.Values{}
	if trigger != "" {
		q.Set("trigger", trigger)
	}
	if group > 0 {
		q.Set("group", strconv.Itoa(group))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/deliveries"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var res HistoryResult
	err := c.do(ctx, http.MethodGet, path, nil, &res)
	return res, err
}

// Maintenance lists maintenance log entries, newest first.
func (c *Client) Maintenance(ctx context.Context, limit int) ([]store.MaintenanceEntry, error) {
	path := "/maintenance"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var entries []store.MaintenanceEntry
	err := c.do(ctx, http.MethodGet, path, nil, &entries)
	return entries, err
}

type apiError struct {
	Error string `json:"error"`
}

// do performs the request and decodes the JSON response into out when
// out is non-nil. Non-2xx responses become errors carrying the server's
// error message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(data, &ae) == nil && ae.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, ae.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
