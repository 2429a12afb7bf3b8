// Package hub is the pull-side client for the IoT message hub. It fetches a
// device's raw key-wise timeseries for a window, which the aligner then
// reshapes into rows.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/uva-clima/go-inmet/pkg/align"
)

// Config holds the hub endpoint and the tenant credentials used for the
// server-side telemetry API.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// LoadConfigFromEnv reads the hub configuration from environment variables.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{
		BaseURL:  os.Getenv("HUB_BASE_URL"),
		Username: os.Getenv("HUB_TENANT_USER"),
		Password: os.Getenv("HUB_TENANT_PASSWORD"),
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("HUB_BASE_URL environment variable not set")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("HUB_TENANT_USER / HUB_TENANT_PASSWORD environment variables not set")
	}
	return cfg, nil
}

// Client talks to a ThingsBoard-compatible REST API. The JWT from the login
// endpoint is cached and refreshed on expiry.
type Client struct {
	baseURL string
	cfg     Config
	http    *http.Client
	logger  zerolog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a hub client. The *http.Client is injected so tests can
// point it at a local server.
func NewClient(cfg *Config, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("hub config cannot be nil")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     *cfg,
		http:    httpClient,
		logger:  logger.With().Str("component", "HubClient").Logger(),
	}, nil
}

// FetchSeries returns the device's raw series for every requested channel in
// the [start, end] window, keyed by channel name. A 401 invalidates the cached
// JWT and the request is retried once with a fresh login, so a token revoked
// server-side does not fail the pull.
func (c *Client) FetchSeries(ctx context.Context, hubDeviceID string, channels []string, start, end time.Time) (map[string]align.ChannelSeries, error) {
	q := url.Values{}
	q.Set("keys", strings.Join(channels, ","))
	q.Set("startTs", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTs", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", "100000")
	endpoint := fmt.Sprintf("%s/api/plugins/telemetry/DEVICE/%s/values/timeseries?%s", c.baseURL, hubDeviceID, q.Encode())

	var series map[string]align.ChannelSeries
	for attempt := 0; ; attempt++ {
		token, err := c.authToken(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Authorization", "Bearer "+token)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("hub timeseries request: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.invalidateToken(token)
			c.logger.Debug().Str("hub_device_id", hubDeviceID).Msg("Hub rejected token, logging in again")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("hub timeseries request failed: status %d: %s", resp.StatusCode, body)
		}

		err = json.NewDecoder(resp.Body).Decode(&series)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding hub timeseries response: %w", err)
		}
		break
	}

	c.logger.Debug().
		Str("hub_device_id", hubDeviceID).
		Int("channel_count", len(series)).
		Msg("Fetched series from hub")
	return series, nil
}

// invalidateToken drops the cached JWT, but only if it is still the one the
// failed request carried. A concurrent re-login's fresh token stays cached.
func (c *Client) invalidateToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
	}
}

// authToken returns a cached JWT, logging in again when it is missing or
// within a minute of expiring.
func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.token, nil
	}

	creds, err := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(creds))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("hub login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("hub login failed: status %d", resp.StatusCode)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", fmt.Errorf("decoding hub login response: %w", err)
	}
	if loginResp.Token == "" {
		return "", errors.New("hub login returned an empty token")
	}

	c.token = loginResp.Token
	// ThingsBoard JWTs default to 2.5h; refresh well before that.
	c.tokenExpiry = time.Now().Add(2 * time.Hour)
	c.logger.Debug().Msg("Hub login succeeded, token cached")
	return c.token, nil
}
