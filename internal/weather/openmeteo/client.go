// Package openmeteo adapts the Open-Meteo historical archive API to the
// weather.Provider interface. All calls go through a circuit breaker and a
// bounded retry loop so a flapping upstream degrades into recoverable
// upstream_weather_unavailable errors instead of hammering the API.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"rainguard/internal/types"
	"rainguard/internal/weather"
)

// DefaultBaseURL is the Open-Meteo historical archive endpoint.
const DefaultBaseURL = "https://archive-api.open-meteo.com/v1/archive"

// hourLayout is the timestamp format of the archive API's hourly series.
const hourLayout = "2006-01-02T15:04"

// RetryPolicy bounds the retry loop for upstream calls.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns sensible defaults for archive API calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// Client fetches hourly precipitation series from Open-Meteo. It implements
// weather.Provider.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	baseURL    string
	retry      RetryPolicy
	userAgent  string
	logger     *slog.Logger
	sleepFn    func(time.Duration) // injected in tests to skip real delays
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL points the client at an alternate endpoint (tests, mirrors).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRetryPolicy overrides the retry bounds.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithSleepFunc overrides the sleep between retries.
func WithSleepFunc(fn func(time.Duration)) Option {
	return func(c *Client) { c.sleepFn = fn }
}

// NewClient creates an Open-Meteo archive client.
func NewClient(httpClient *http.Client, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	c := &Client{
		httpClient: httpClient,
		breaker:    cb,
		baseURL:    DefaultBaseURL,
		retry:      DefaultRetryPolicy(),
		userAgent:  "RainGuard/1.0",
		logger:     logger,
		sleepFn:    time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements weather.Provider.
func (c *Client) Name() types.WeatherSource {
	return types.SourceOpenMeteo
}

// archiveResponse is the subset of the Open-Meteo payload the engine needs.
type archiveResponse struct {
	Hourly struct {
		Time          []string  `json:"time"`
		Precipitation []float64 `json:"precipitation"`
	} `json:"hourly"`
}

// FetchHourly implements weather.Provider. The archive is asked for the
// destination's local timezone, so returned timestamps already align with
// local hour boundaries. Hours the provider omits stay at zero; the
// aggregator treats them as no precipitation recorded.
func (c *Client) FetchHourly(ctx context.Context, dest types.Destination, dates types.DateRange) (weather.HourlySeries, error) {
	if !dates.Valid() {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidDateRange,
			"date range must have start <= end in YYYY-MM-DD form",
			nil,
		)
	}

	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(dest.Lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(dest.Lon, 'f', -1, 64))
	values.Set("start_date", dates.Start)
	values.Set("end_date", dates.End)
	values.Set("hourly", "precipitation")
	values.Set("timezone", dest.Timezone)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "building archive request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if reqID := types.GetRequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-Id", reqID)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload archiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "decoding archive response", err)
	}
	return parseSeries(payload), nil
}

// parseSeries groups the flat hourly arrays by calendar date.
func parseSeries(payload archiveResponse) weather.HourlySeries {
	series := make(weather.HourlySeries)
	for i, stamp := range payload.Hourly.Time {
		if i >= len(payload.Hourly.Precipitation) {
			break
		}
		t, err := time.Parse(hourLayout, stamp)
		if err != nil {
			continue // skip malformed stamps rather than failing the fetch
		}
		date := t.Format(types.DateLayout)
		readings := series[date]
		readings[t.Hour()] = payload.Hourly.Precipitation[i]
		series[date] = readings
	}
	return series
}

// httpStatusError carries the status of a retryable upstream response through
// the breaker, which drops the response after closing its body.
type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return "upstream returned " + strconv.Itoa(e.status)
}

// do executes the request through the breaker with retries on 429/5xx.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	var lastErr error
	var lastStatus int

	maxAttempts := 1 + c.retry.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				r.Body.Close()
				return nil, &httpStatusError{status: r.StatusCode}
			}
			return r, nil
		})

		if err == nil {
			if resp.StatusCode >= 400 {
				// Non-retryable client error.
				resp.Body.Close()
				return nil, types.NewAppErrorWithDetails(
					types.ErrCodeUpstreamWeather,
					"archive request rejected",
					nil,
					map[string]any{"status": resp.StatusCode},
				)
			}
			return resp, nil
		}

		lastErr = err
		lastStatus = 0
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) {
			lastStatus = statusErr.status
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if req.Context().Err() != nil {
			break
		}
		if attempt < maxAttempts-1 {
			c.sleepFn(c.backoff(attempt))
		}
	}

	code := types.ErrCodeUpstreamWeather
	if lastStatus == http.StatusTooManyRequests {
		code = types.ErrCodeUpstreamRateLimited
	}
	c.logger.Warn("archive fetch failed", "error", lastErr)
	return nil, types.NewAppError(code, "weather provider unavailable", lastErr)
}

// backoff computes an exponential wait with full jitter, clamped to
// [0, min(MaxWait, MinWait*2^attempt)].
func (c *Client) backoff(attempt int) time.Duration {
	ceil := float64(c.retry.MinWait) * math.Pow(2, float64(attempt))
	if max := float64(c.retry.MaxWait); ceil > max {
		ceil = max
	}
	return time.Duration(rand.Float64() * ceil)
}
