// Package client provides the Spotify Web API client used by the harvester:
// every request goes through the rate limiter, retries follow the error
// classification in errors.go, and GET responses may be served from a Redis
// cache.
package client

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

	"github.com/Sternrassler/collabgraph/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_requests_total",
		Help: "Total Spotify API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "collab_request_duration_seconds",
		Help:    "Spotify API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_errors_total",
		Help: "Total Spotify API errors by class",
	}, []string{"class"})
)

// Endpoint labels used in metrics and logs.
const (
	endpointArtistAlbums = "/artists/{id}/albums"
	endpointAlbums       = "/albums"
	endpointAlbumTracks  = "/albums/{id}/tracks"
	endpointArtists      = "/artists"
)

// MaxAlbumIDs is the largest number of ids /albums accepts per request.
const MaxAlbumIDs = 20

// MaxArtistIDs is the largest number of ids /artists accepts per request.
const MaxArtistIDs = 50

// DefaultBaseURL is the Spotify Web API root.
const DefaultBaseURL = "https://api.spotify.com/v1"

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root. Defaults to DefaultBaseURL.
	BaseURL string

	// Market is the ISO 3166-1 country code passed as market=.
	Market string

	// HTTPClient carries authentication (see Authenticate). Required.
	HTTPClient *http.Client

	// Cache is optional. When set, successful GETs are stored and reused.
	Cache *cache.Manager

	// CacheTTL is the lifetime used when responses carry no caching headers.
	CacheTTL time.Duration
}

// Client is the Spotify Web API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	market     string
	executor   *Executor
	cache      *cache.Manager
	cacheTTL   time.Duration
	logger     zerolog.Logger
}

// New creates a new Spotify client. All requests are run by executor.
func New(cfg Config, executor *Executor, logger zerolog.Logger) (*Client, error) {
	if cfg.HTTPClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	return &Client{
		httpClient: cfg.HTTPClient,
		baseURL:    baseURL,
		market:     cfg.Market,
		executor:   executor,
		cache:      cfg.Cache,
		cacheTTL:   cfg.CacheTTL,
		logger:     logger,
	}, nil
}

// ArtistAlbums returns one page of the artist's albums and singles.
func (c *Client) ArtistAlbums(ctx context.Context, artistID string, offset, limit int) (Paging[SimplifiedAlbum], error) {
	query := url.Values{}
	query.Set("include_groups", "album,single")
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	c.setMarket(query)

	path := "/artists/" + url.PathEscape(artistID) + "/albums"
	return getJSON[Paging[SimplifiedAlbum]](ctx, c, endpointArtistAlbums, path, query)
}

// Albums fetches up to MaxAlbumIDs full albums in one request. The result is
// aligned with ids; an unknown id yields a nil entry.
func (c *Client) Albums(ctx context.Context, ids []string) ([]*Album, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxAlbumIDs {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyIDs, len(ids), MaxAlbumIDs)
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	c.setMarket(query)

	resp, err := getJSON[albumsResponse](ctx, c, endpointAlbums, "/albums", query)
	if err != nil {
		return nil, err
	}
	return resp.Albums, nil
}

// AlbumTracks returns one page of an album's tracks.
func (c *Client) AlbumTracks(ctx context.Context, albumID string, offset, limit int) (Paging[SimplifiedTrack], error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	c.setMarket(query)

	path := "/albums/" + url.PathEscape(albumID) + "/tracks"
	return getJSON[Paging[SimplifiedTrack]](ctx, c, endpointAlbumTracks, path, query)
}

// Artists fetches up to MaxArtistIDs full artists in one request. The result
// is aligned with ids; an unknown id yields a nil entry.
func (c *Client) Artists(ctx context.Context, ids []string) ([]*Artist, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxArtistIDs {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyIDs, len(ids), MaxArtistIDs)
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))

	resp, err := getJSON[artistsResponse](ctx, c, endpointArtists, "/artists", query)
	if err != nil {
		return nil, err
	}
	return resp.Artists, nil
}

func (c *Client) setMarket(query url.Values) {
	if c.market != "" {
		query.Set("market", c.market)
	}
}

// getJSON performs a GET through the cache and the executor and decodes the
// body into T. Cache hits do not consume request budget.
func getJSON[T any](ctx context.Context, c *Client, endpoint, path string, query url.Values) (T, error) {
	var result T
	cacheKey := cache.NewKey(path, query)

	if c.cache != nil {
		cached, err := cache.GetJSON[T](ctx, c.cache, cacheKey)
		switch {
		case err == nil:
			c.logger.Debug().Str("endpoint", endpoint).Str("path", path).Msg("Served from cache")
			return cached, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	err := c.executor.Execute(ctx, endpoint, func(ctx context.Context) error {
		body, header, err := c.do(ctx, endpoint, reqURL)
		if err != nil {
			return err
		}

		var decoded T
		if err := json.Unmarshal(body, &decoded); err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return &APIError{
				StatusCode: http.StatusOK,
				Class:      ErrorClassNetwork,
				Message:    "decode response",
				Err:        err,
			}
		}
		result = decoded

		if c.cache != nil {
			if err := c.cache.StoreResponse(ctx, cacheKey, header, body, c.cacheTTL); err != nil {
				c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to cache response")
			}
		}
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// do performs a single HTTP GET and returns the body of a 2xx response.
// Non-2xx statuses become *APIError.
func (c *Client) do(ctx context.Context, endpoint, reqURL string) ([]byte, http.Header, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("endpoint", endpoint).Str("url", reqURL).Msg("Executing Spotify request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, nil, &APIError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	if resp.StatusCode >= 300 {
		apiErr := newStatusError(resp, time.Now())
		if apiErr.Class == "" {
			apiErr.Class = ErrorClassClient
		}
		if msg := errorMessage(body); msg != "" {
			apiErr.Message = msg
		}
		errorsTotal.WithLabelValues(string(apiErr.Class)).Inc()
		return nil, nil, apiErr
	}

	return body, resp.Header, nil
}

// errorMessage extracts the message from a Spotify error body
// ({"error": {"status": 404, "message": "..."}}).
func errorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Error.Message
}
