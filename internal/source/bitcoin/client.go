package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"golddash/internal/market"
	"golddash/internal/numfmt"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=bitcoin_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultBaseURL = "https://api.coingecko.com"

// Client is a client for the CoinGecko simple-price API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client used for each request.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
}

// ClientOption is a configuration option for the client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a new CoinGecko API client.
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// SimplePrice returns the current price of one coin in one fiat currency.
func (c *Client) SimplePrice(ctx context.Context, id, vsCurrency string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", vsCurrency)
	endpoint := c.baseURL + "/api/v3/simple/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, &market.NetworkError{URL: endpoint, Err: err}
	}
	for key, values := range c.header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Decimal{}, &market.NetworkError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Decimal{}, &market.NetworkError{URL: endpoint, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var body map[string]map[string]json.Number
	if err := dec.Decode(&body); err != nil {
		return decimal.Decimal{}, &market.ExtractionError{Source: "coingecko", Reason: "undecodable payload"}
	}

	n, ok := body[id][vsCurrency]
	if !ok {
		return decimal.Decimal{}, &market.ExtractionError{
			Source: "coingecko", Reason: fmt.Sprintf("missing %s.%s field", id, vsCurrency),
		}
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, &numfmt.FormatError{Raw: n.String(), Reason: "unparseable number"}
	}
	return d, nil
}
