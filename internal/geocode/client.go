package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pathpatrol/internal/model"
	"pathpatrol/internal/obs"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "PathPatrol_PotholeReporter/1.0"
	DefaultTimeout   = 10 * time.Second

	minQueryLength = 2
	searchLimit    = 10
)

var logf = log.Printf

type Place struct {
	DisplayName string  `json:"display_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Client talks to a Nominatim-compatible service. Lookups never fail: any
// error is logged and turned into an empty result.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the cap.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithCache(cache Cache) Option {
	return func(c *Client) {
		if cache != nil {
			c.cache = cache
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
		cache:      NewMemoryCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Search returns up to ten places matching query. Queries shorter than two
// characters return nothing without a request.
func (c *Client) Search(ctx context.Context, query string) []Place {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minQueryLength {
		return []Place{}
	}

	key := "search:" + strings.ToLower(query)
	if cached, ok := c.cache.Get(ctx, key); ok {
		var places []Place
		if err := json.Unmarshal(cached, &places); err == nil {
			obs.GeocodeRequests.WithLabelValues("search", "cache").Inc()
			return places
		}
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(searchLimit))

	var raw []nominatimPlace
	if err := c.get(ctx, "/search", params, &raw); err != nil {
		logf("Geocoding search for %q failed: %v", query, err)
		obs.GeocodeRequests.WithLabelValues("search", "error").Inc()
		return []Place{}
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLon != nil {
			continue
		}
		places = append(places, Place{DisplayName: r.DisplayName, Latitude: lat, Longitude: lon})
	}

	obs.GeocodeRequests.WithLabelValues("search", "ok").Inc()
	if encoded, err := json.Marshal(places); err == nil {
		c.cache.Set(ctx, key, encoded)
	}
	return places
}

// Reverse returns the display name for a coordinate, or "" when unknown.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) string {
	key := fmt.Sprintf("reverse:%.6f,%.6f", lat, lon)
	if cached, ok := c.cache.Get(ctx, key); ok {
		obs.GeocodeRequests.WithLabelValues("reverse", "cache").Inc()
		return string(cached)
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))

	var raw nominatimPlace
	if err := c.get(ctx, "/reverse", params, &raw); err != nil {
		logf("Reverse geocoding for %.6f,%.6f failed: %v", lat, lon, err)
		obs.GeocodeRequests.WithLabelValues("reverse", "error").Inc()
		return ""
	}

	obs.GeocodeRequests.WithLabelValues("reverse", "ok").Inc()
	if raw.DisplayName != "" {
		c.cache.Set(ctx, key, []byte(raw.DisplayName))
	}
	return raw.DisplayName
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", model.ErrExternalService, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", model.ErrExternalService, err)
	}
	return nil
}
