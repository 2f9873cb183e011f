// Package restfallback implements REST_FALLBACK (§4.5): an on-demand
// REST lookup for either symbol, used when STREAM_A/STREAM_B cannot
// produce a fresh sample. Transport-level retries are delegated to
// go-retryablehttp (grounded on the teacher's HTTPClient connection
// pooling in internal/exchange/httpclient.go, generalized from a
// plain http.Client to retryablehttp's built-in retry policy); the
// business-level "retry a few times, then give up" decision on top of
// that is pkg/retry's jittered backoff, applied around the whole
// fetch-and-decode operation so a fetch that succeeds at the
// transport layer but returns an unparsable body still gets retried.
package restfallback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"otcbot/internal/models"
	"otcbot/pkg/retry"
)

// Decoder turns a response body into a price sample for the requested symbol.
type Decoder func(symbol string, body []byte) (models.PriceSample, error)

// Config controls the endpoint and retry behavior.
type Config struct {
	BaseURL       string
	RequestTimeout time.Duration
	TransportRetries int // retryablehttp's own attempt count
	BusinessRetry  retry.Config
}

func DefaultConfig(baseURL string) Config {
	businessRetry := retry.NetworkConfig()
	businessRetry.RetryIf = retry.IsRetryable

	return Config{
		BaseURL:          baseURL,
		RequestTimeout:   5 * time.Second,
		TransportRetries: 2,
		BusinessRetry:    businessRetry,
	}
}

// Client performs on-demand REST lookups for a symbol's price.
type Client struct {
	cfg    Config
	http   *retryablehttp.Client
	decode Decoder
}

func New(cfg Config, decode Decoder) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.TransportRetries
	rc.Logger = nil
	rc.HTTPClient.Timeout = cfg.RequestTimeout

	return &Client{cfg: cfg, http: rc, decode: decode}
}

// Fetch performs the REST lookup for symbol, returning a decoded
// sample. pkg/retry wraps the whole fetch-and-decode so a
// transport-successful-but-malformed response is retried as a whole
// under NetworkConfig's backoff (up to 4 attempts in all).
func (c *Client) Fetch(ctx context.Context, symbol string) (models.PriceSample, error) {
	return retry.DoWithResult(ctx, func() (models.PriceSample, error) {
		return c.fetchOnce(ctx, symbol)
	}, c.cfg.BusinessRetry)
}

func (c *Client) fetchOnce(ctx context.Context, symbol string) (models.PriceSample, error) {
	url := fmt.Sprintf("%s?symbol=%s", c.cfg.BaseURL, symbol)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.PriceSample{}, fmt.Errorf("restfallback: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.PriceSample{}, retry.Temporary(fmt.Errorf("restfallback: request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.PriceSample{}, fmt.Errorf("restfallback: read body: %w", err)
	}

	if resp.StatusCode >= 500 {
		return models.PriceSample{}, retry.Temporary(fmt.Errorf("restfallback: upstream status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return models.PriceSample{}, retry.Permanent(fmt.Errorf("restfallback: upstream status %d", resp.StatusCode))
	}

	sample, err := c.decode(symbol, body)
	if err != nil {
		return models.PriceSample{}, fmt.Errorf("restfallback: decode: %w", err)
	}
	if sample.Source == "" {
		sample.Source = models.SourceRESTFallback
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now().UTC()
	}
	return sample, nil
}

// JSONPriceDecoder decodes a {"price": float} body, the common case
// for a semantic REST price endpoint.
func JSONPriceDecoder(symbol string, body []byte) (models.PriceSample, error) {
	var payload struct {
		Price float64 `json:"price"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.PriceSample{}, err
	}
	return models.PriceSample{Symbol: symbol, Price: payload.Price}, nil
}
