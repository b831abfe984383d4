package marketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"nftflow/internal/events"
)

const (
	// DefaultRestURL is the marketplace REST API root.
	DefaultRestURL = "https://api.opensea.io/api/v2"

	// DefaultUserAgent mimics a browser UA to avoid edge-proxy 403s.
	DefaultUserAgent = "Mozilla/5.0"

	defaultTimeout = 12 * time.Second

	// maxEventPages bounds cursor-follow within one fetch so a busy
	// collection cannot pin a polling cycle.
	maxEventPages = 5
)

// Client talks to the marketplace REST events endpoint. Requests carry the
// API key header and pass through a client-side rate limiter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOptions tune the REST client; zero values select defaults.
type ClientOptions struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond int
	BurstSize         int
}

// NewClient creates a REST events client for the given API root.
func NewClient(baseURL, apiKey string, opts ClientOptions) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultRestURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("events url parse %q: %w", baseURL, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("events url must be http(s), got %q", baseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	agent := opts.UserAgent
	if agent == "" {
		agent = DefaultUserAgent
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	burst := opts.BurstSize
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: headerTransport{apiKey: apiKey, agent: agent},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// EventsQuery scopes an event fetch. Account-scoped when Account is set,
// collection-scoped otherwise.
type EventsQuery struct {
	Account    string
	Collection string
	Chain      string
	// After bounds the window: only events with a strictly greater
	// timestamp (epoch seconds) are returned.
	After int64
	Limit int
}

type eventsResponse struct {
	AssetEvents []events.RestEvent `json:"asset_events"`
	Next        string             `json:"next"`
}

// Events fetches the raw events for the query window, following the
// continuation cursor up to a bounded number of pages.
func (c *Client) Events(ctx context.Context, q EventsQuery) ([]events.RestEvent, error) {
	endpoint, err := c.eventsEndpoint(q)
	if err != nil {
		return nil, err
	}

	var out []events.RestEvent
	cursor := ""
	for page := 0; page < maxEventPages; page++ {
		resp, err := c.fetchPage(ctx, endpoint, q, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.AssetEvents...)
		if resp.Next == "" || len(resp.AssetEvents) == 0 {
			break
		}
		cursor = resp.Next
	}
	return out, nil
}

func (c *Client) eventsEndpoint(q EventsQuery) (string, error) {
	switch {
	case q.Account != "":
		return fmt.Sprintf("%s/events/accounts/%s", c.baseURL, url.PathEscape(strings.ToLower(q.Account))), nil
	case q.Collection != "":
		return fmt.Sprintf("%s/events/collection/%s", c.baseURL, url.PathEscape(q.Collection)), nil
	default:
		return "", fmt.Errorf("events query needs an account or a collection")
	}
}

func (c *Client) fetchPage(ctx context.Context, endpoint string, q EventsQuery, cursor string) (*eventsResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	if q.After > 0 {
		params.Set("occurred_after", strconv.FormatInt(q.After, 10))
	}
	if q.Chain != "" && q.Account != "" {
		params.Set("chain", q.Chain)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if cursor != "" {
		params.Set("next", cursor)
	}

	reqURL := endpoint
	if enc := params.Encode(); enc != "" {
		reqURL += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("events fetch failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var parsed eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode events response: %w", err)
	}
	return &parsed, nil
}
