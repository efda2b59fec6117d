// Package flashfood is a client for the Flashfood shopper API, the upstream
// marketplace the pipeline polls. The API is the one the mobile app speaks,
// so requests mimic the iOS client's headers.
package flashfood

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
)

// DefaultBaseURL is the production shopper API endpoint.
const DefaultBaseURL = "https://app.shopper.flashfood.com/api/v1"

const requestTimeout = 30 * time.Second

// APIError describes a failed API call. Transient errors (timeouts, rate
// limiting, server errors) may be retried within the current cycle; fatal
// errors (auth failure, malformed response) may not.
type APIError struct {
	Op         string
	StatusCode int // 0 for transport-level failures
	Transient  bool
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("flashfood %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("flashfood %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable upstream failure.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient
	}
	return false
}

// StoreListings pairs a parsed store with its currently advertised listings.
type StoreListings struct {
	Store    domain.Store
	Listings []domain.Listing
}

// Client calls the Flashfood shopper API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	onCall  func(op string, elapsed time.Duration, err error)
}

// NewClient creates a client with the default request timeout.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// NewClientWithHTTP creates a client using the given HTTP client. Used by
// tests and by callers that need custom transport settings.
func NewClientWithHTTP(baseURL, apiKey string, httpClient *http.Client) *Client {
	c := NewClient(baseURL, apiKey)
	if httpClient != nil {
		c.http = httpClient
	}
	return c
}

// OnCall registers fn to observe the operation, latency and outcome of every
// API call. Set it before the client is shared across goroutines.
func (c *Client) OnCall(fn func(op string, elapsed time.Duration, err error)) {
	c.onCall = fn
}

// ListStores fetches stores (with their item listings) near the region's
// search center.
func (c *Client) ListStores(ctx context.Context, region domain.Region) ([]StoreListings, error) {
	params := url.Values{}
	params.Set("storesWithItemsLimit", strconv.Itoa(region.StoreLimit))
	params.Set("includeItems", "true")
	params.Set("searchLatitude", formatCoord(region.Latitude))
	params.Set("searchLongitude", formatCoord(region.Longitude))
	params.Set("userLocationLatitude", formatCoord(region.Latitude))
	params.Set("userLocationLongitude", formatCoord(region.Longitude))
	params.Set("maxDistance", strconv.Itoa(region.RadiusMeters))

	body, err := c.get(ctx, "list stores", "/stores", params)
	if err != nil {
		return nil, err
	}

	var resp storesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{Op: "list stores", Err: fmt.Errorf("decode response: %w", err)}
	}

	result := make([]StoreListings, 0, len(resp.Data))
	for _, raw := range resp.Data {
		store := raw.toDomain(region.Key)
		listings := make([]domain.Listing, 0, len(raw.Items))
		for _, item := range raw.Items {
			listings = append(listings, item.toDomain(store.ExternalID))
		}
		result = append(result, StoreListings{Store: store, Listings: listings})
	}
	return result, nil
}

// ListItems fetches the current listings for a single store.
func (c *Client) ListItems(ctx context.Context, storeID string) ([]domain.Listing, error) {
	params := url.Values{}
	params.Set("storeIds", storeID)

	body, err := c.get(ctx, "list items", "/items/", params)
	if err != nil {
		return nil, err
	}

	var resp itemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{Op: "list items", Err: fmt.Errorf("decode response: %w", err)}
	}

	raws := resp.Data[storeID]
	listings := make([]domain.Listing, 0, len(raws))
	for _, item := range raws {
		listings = append(listings, item.toDomain(storeID))
	}
	return listings, nil
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	start := time.Now()
	body, err := c.doGet(ctx, op, path, params)
	if c.onCall != nil {
		c.onCall(op, time.Since(start), err)
	}
	return body, err
}

func (c *Client) doGet(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &APIError{Op: op, Err: err}
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failures (connection refused, timeout) are retryable.
		return nil, &APIError{Op: op, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Transient:  isTransientStatus(resp.StatusCode),
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Op: op, Transient: true, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// setHeaders mimics the iOS shopper app.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-CA")
	req.Header.Set("flashfood-app-info",
		"app/shopper,appversion/3.2.6,appbuild/35155,os/ios,osversion/18.6.1,devicemodel/Apple_iPhone14_5,deviceid/unknown")
	req.Header.Set("User-Agent", "Flashfood/35155 CFNetwork/3826.600.41 Darwin/24.6.0")
	req.Header.Set("x-ff-api-key", c.apiKey)
}

func isTransientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
