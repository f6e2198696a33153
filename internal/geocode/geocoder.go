// Package geocode resolves quantized coordinates to street addresses.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultEndpoint is the Google Geocoding API.
const DefaultEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// Geocoder looks up an address for a quantized coordinate. Lookup never
// fails; when no address is available it returns a coordinate string.
type Geocoder interface {
	Lookup(ctx context.Context, latQ, lonQ float64) string
}

// Key returns the cache key of a quantized coordinate.
func Key(latQ, lonQ float64) string {
	return fmt.Sprintf("%.5f,%.5f", latQ, lonQ)
}

// Fallback is the text used when a lookup fails.
func Fallback(lat, lon float64) string {
	return fmt.Sprintf("%.5f, %.5f", lat, lon)
}

// GoogleGeocoder queries the Google Geocoding API and caches answers by
// quantized coordinate. Fallbacks after a failed request are remembered for
// the lifetime of the geocoder only and never show up in Entries.
type GoogleGeocoder struct {
	apiKey   string
	language string
	endpoint string
	http     *http.Client
	log      *zap.SugaredLogger

	mu    sync.Mutex
	cache  map[string]string
	failed map[string]string
	calls  int
}

// Option configures a GoogleGeocoder.
type Option func(*GoogleGeocoder)

// WithLanguage sets the response language (default "ja").
func WithLanguage(lang string) Option {
	return func(g *GoogleGeocoder) { g.language = lang }
}

// WithEndpoint overrides the API URL.
func WithEndpoint(endpoint string) Option {
	return func(g *GoogleGeocoder) { g.endpoint = endpoint }
}

// WithTimeout sets the per-request timeout (default 5s).
func WithTimeout(d time.Duration) Option {
	return func(g *GoogleGeocoder) { g.http.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(g *GoogleGeocoder) { g.log = log }
}

// WithCache seeds the cache, e.g. from LoadCache.
func WithCache(entries map[string]string) Option {
	return func(g *GoogleGeocoder) {
		for k, v := range entries {
			g.cache[k] = v
		}
	}
}

// NewGoogleGeocoder creates a geocoder. With an empty API key no request is
// made and the cache key itself is returned.
func NewGoogleGeocoder(apiKey string, opts ...Option) *GoogleGeocoder {
	g := &GoogleGeocoder{
		apiKey:   apiKey,
		language: "ja",
		endpoint: DefaultEndpoint,
		http:     &http.Client{Timeout: 5 * time.Second},
		log:      zap.NewNop().Sugar(),
		cache:    make(map[string]string),
		failed:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

// Lookup returns the address for a quantized coordinate.
func (g *GoogleGeocoder) Lookup(ctx context.Context, latQ, lonQ float64) string {
	key := Key(latQ, lonQ)

	g.mu.Lock()
	if addr, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return addr
	}
	if addr, ok := g.failed[key]; ok {
		g.mu.Unlock()
		return addr
	}
	g.mu.Unlock()

	if g.apiKey == "" {
		return key
	}
	addr, err := g.request(ctx, latQ, lonQ)
	if err != nil {
		g.log.Warnw("reverse geocode failed", "key", key, "error", err)
		addr = Fallback(latQ, lonQ)
		g.mu.Lock()
		g.failed[key] = addr
		g.mu.Unlock()
		return addr
	}

	g.mu.Lock()
	g.cache[key] = addr
	g.mu.Unlock()
	return addr
}

func (g *GoogleGeocoder) request(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("latlng", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("key", g.apiKey)
	q.Set("language", g.language)

	req, err := http.NewRequestWithContext(ctx, "GET", g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}

	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	var result geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if result.Status != "OK" || len(result.Results) == 0 {
		return "", fmt.Errorf("geocode status %q (http %d)", result.Status, resp.StatusCode)
	}
	return result.Results[0].FormattedAddress, nil
}

// Calls returns how many API requests were made.
func (g *GoogleGeocoder) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Entries returns a copy of the resolved addresses. Failed lookups are left out.
func (g *GoogleGeocoder) Entries() map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]string, len(g.cache))
	for k, v := range g.cache {
		out[k] = v
	}
	return out
}
