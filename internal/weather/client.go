// Package weather talks to OpenWeatherMap and renders chat-ready reports.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5"

var (
	ErrCityNotFound = errors.New("city not found")
	ErrNoAPIKey     = errors.New("openweathermap api key is not configured")
	errUnauthorized = errors.New("openweathermap rejected api key")
	errRateLimited  = errors.New("rate limited")
	errServerError  = errors.New("server error")
	errUnexpected   = errors.New("unexpected status code")
	errCircuitOpen  = errors.New("circuit breaker open")
)

// Config configures the OpenWeatherMap client.
type Config struct {
	APIKey  string
	BaseURL string // defaults to the public API
	Lang    string // e.g. "en", "uk"
}

// Client is an OpenWeatherMap client. Each call is a single HTTP attempt
// guarded by a circuit breaker; callers retry on their own schedule.
type Client struct {
	cfg     Config
	http    *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewClient creates a client. httpClient carries the request timeout.
func NewClient(httpClient *http.Client, cfg Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweathermap",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// Unknown cities are user input, not provider failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCityNotFound)
		},
	})

	return &Client{cfg: cfg, http: httpClient, circuit: cb}
}

// Current returns current conditions for a city name ("Kyiv", "Kyiv,UA").
func (c *Client) Current(ctx context.Context, city string) (Current, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Current{}, ErrCityNotFound
	}
	var p currentPayload
	if err := c.get(ctx, "/weather", url.Values{"q": {city}}, &p); err != nil {
		return Current{}, err
	}
	return p.toCurrent(), nil
}

// CurrentByCoords returns current conditions for a coordinate pair.
func (c *Client) CurrentByCoords(ctx context.Context, lat, lon float64) (Current, error) {
	var p currentPayload
	if err := c.get(ctx, "/weather", coords(lat, lon), &p); err != nil {
		return Current{}, err
	}
	return p.toCurrent(), nil
}

// Forecast returns the 5-day / 3-hour forecast for a city.
func (c *Client) Forecast(ctx context.Context, city string) (Forecast, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Forecast{}, ErrCityNotFound
	}
	var p forecastPayload
	if err := c.get(ctx, "/forecast", url.Values{"q": {city}}, &p); err != nil {
		return Forecast{}, err
	}
	return p.toForecast(), nil
}

// CityByCoords resolves coordinates to the provider's city name.
func (c *Client) CityByCoords(ctx context.Context, lat, lon float64) (string, error) {
	cur, err := c.CurrentByCoords(ctx, lat, lon)
	if err != nil {
		return "", err
	}
	if cur.City == "" {
		return "", ErrCityNotFound
	}
	return cur.City, nil
}

// ZoneOffset returns the city's current UTC offset in seconds.
func (c *Client) ZoneOffset(ctx context.Context, city string) (int, error) {
	cur, err := c.Current(ctx, city)
	if err != nil {
		return 0, err
	}
	return cur.TZOffset, nil
}

func coords(lat, lon float64) url.Values {
	return url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', 4, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', 4, 64)},
	}
}

// get performs one GET against path and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, values url.Values, out any) error {
	if c.cfg.APIKey == "" {
		return ErrNoAPIKey
	}
	values.Set("appid", c.cfg.APIKey)
	values.Set("units", "metric")
	values.Set("lang", c.cfg.Lang)

	u := c.cfg.BaseURL + path + "?" + values.Encode()

	_, err := c.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrCityNotFound
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, errUnauthorized
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, errRateLimited
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}

		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", errCircuitOpen, err)
	}
	return err
}
