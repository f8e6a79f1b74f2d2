// Package testutil provides testing utilities for the Spotify client and the
// harvesting pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines a canned response for one request.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockArtist is an artist credit in the fake catalogue.
type MockArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MockTrack is a track in the fake catalogue. An empty ID is served as null.
type MockTrack struct {
	ID      string
	Name    string
	Artists []MockArtist
}

// MockAlbum is a release in the fake catalogue.
type MockAlbum struct {
	ID      string
	Name    string
	Group   string // album, single, compilation, appears_on
	Artists []MockArtist
	Tracks  []MockTrack
}

// MockArtistDetails is the full artist object served by /artists.
type MockArtistDetails struct {
	ID         string
	Name       string
	Popularity int
	Followers  int
	Genres     []string
}

// MockSpotify is a configurable fake Spotify Web API and token endpoint.
// Its URL serves both as the API base URL and, with TokenPath, as the token URL.
type MockSpotify struct {
	server *httptest.Server

	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	queued   map[string][]MockResponse
	albums   map[string]MockAlbum
	listings map[string][]string // artist id -> album ids in listing order
	artists  map[string]MockArtistDetails

	// EmbeddedTrackLimit is the size of the track page embedded in /albums.
	EmbeddedTrackLimit int

	// Tracking
	RequestCount      int
	TokenRequests     int
	pathCounts        map[string]int
	requestTimes      []time.Time
	LastRequestHeader http.Header
}

// TokenPath is the path of the fake token endpoint.
const TokenPath = "/api/token"

// NewMockSpotify creates and starts a new mock server.
func NewMockSpotify() *MockSpotify {
	mock := &MockSpotify{
		handlers:           make(map[string]func(w http.ResponseWriter, r *http.Request)),
		queued:             make(map[string][]MockResponse),
		albums:             make(map[string]MockAlbum),
		listings:           make(map[string][]string),
		artists:            make(map[string]MockArtistDetails),
		pathCounts:         make(map[string]int),
		EmbeddedTrackLimit: 50,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serveHTTP))
	return mock
}

func (m *MockSpotify) serveHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	m.mu.Lock()
	if path == TokenPath {
		m.TokenRequests++
	} else {
		m.RequestCount++
		m.pathCounts[path]++
		m.requestTimes = append(m.requestTimes, time.Now())
		m.LastRequestHeader = r.Header.Clone()
	}

	var queued *MockResponse
	if q := m.queued[path]; len(q) > 0 {
		queued = &q[0]
		m.queued[path] = q[1:]
	}
	handler, exists := m.handlers[path]
	m.mu.Unlock()

	switch {
	case queued != nil:
		writeMockResponse(w, *queued)
	case exists:
		handler(w, r)
	case path == TokenPath:
		m.tokenHandler(w, r)
	default:
		m.catalogueHandler(w, r)
	}
}

// URL returns the mock server URL.
func (m *MockSpotify) URL() string {
	return m.server.URL
}

// TokenURL returns the fake token endpoint URL.
func (m *MockSpotify) TokenURL() string {
	return m.server.URL + TokenPath
}

// Close shuts down the mock server.
func (m *MockSpotify) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockSpotify) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.TokenRequests = 0
	m.pathCounts = make(map[string]int)
	m.requestTimes = nil
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockSpotify) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockSpotify) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeMockResponse(w, resp)
	})
}

// QueueResponses makes the next len(resps) requests to path return resps in
// order. Later requests fall back to the normal handler.
func (m *MockSpotify) QueueResponses(path string, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued[path] = append(m.queued[path], resps...)
}

// AddArtistAlbums adds albums to the catalogue and lists them under artistID.
func (m *MockSpotify) AddArtistAlbums(artistID string, albums ...MockAlbum) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, album := range albums {
		m.albums[album.ID] = album
		m.listings[artistID] = append(m.listings[artistID], album.ID)
	}
}

// AddArtistDetails adds full artist objects served by /artists.
func (m *MockSpotify) AddArtistDetails(artists ...MockArtistDetails) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range artists {
		m.artists[a.ID] = a
	}
}

// GetRequestCount returns the number of API requests (token requests excluded).
func (m *MockSpotify) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetTokenRequests returns the number of token requests.
func (m *MockSpotify) GetTokenRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TokenRequests
}

// GetLastRequestHeader returns the headers of the most recent API request.
func (m *MockSpotify) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

// PathCount returns the number of requests made to path.
func (m *MockSpotify) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// Paths returns every requested API path, sorted.
func (m *MockSpotify) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.pathCounts))
	for p := range m.pathCounts {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// RequestTimes returns the arrival time of every API request.
func (m *MockSpotify) RequestTimes() []time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]time.Time, len(m.requestTimes))
	copy(out, m.requestTimes)
	return out
}

func (m *MockSpotify) tokenHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, _, ok := r.BasicAuth(); !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_client"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "mock-token",
		"token_type":   "bearer",
		"expires_in":   3600,
	})
}

func (m *MockSpotify) catalogueHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	query := r.URL.Query()

	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case len(parts) == 3 && parts[0] == "artists" && parts[2] == "albums":
		m.serveArtistAlbums(w, r, parts[1], query)
	case len(parts) == 1 && parts[0] == "albums":
		m.serveAlbums(w, r, query)
	case len(parts) == 1 && parts[0] == "artists":
		m.serveArtists(w, query)
	case len(parts) == 3 && parts[0] == "albums" && parts[2] == "tracks":
		album, ok := m.albums[parts[1]]
		if !ok {
			writeError(w, http.StatusNotFound, "non existing id")
			return
		}
		offset, limit := pageParams(query, 20)
		writeJSON(w, http.StatusOK, m.trackPage(r, album, offset, limit))
	default:
		writeError(w, http.StatusNotFound, "service not found")
	}
}

func (m *MockSpotify) serveArtistAlbums(w http.ResponseWriter, r *http.Request, artistID string, query map[string][]string) {
	groups := map[string]bool{}
	for _, g := range strings.Split(first(query["include_groups"]), ",") {
		if g != "" {
			groups[g] = true
		}
	}

	var items []map[string]any
	for _, id := range m.listings[artistID] {
		album := m.albums[id]
		if len(groups) > 0 && !groups[album.Group] {
			continue
		}
		items = append(items, simplifiedAlbum(album))
	}

	offset, limit := pageParams(query, 20)
	writeJSON(w, http.StatusOK, paging(r, items, offset, limit))
}

func (m *MockSpotify) serveAlbums(w http.ResponseWriter, r *http.Request, query map[string][]string) {
	ids := strings.Split(first(query["ids"]), ",")
	if len(ids) > 20 {
		writeError(w, http.StatusBadRequest, "too many ids requested")
		return
	}

	albums := make([]any, 0, len(ids))
	for _, id := range ids {
		album, ok := m.albums[id]
		if !ok {
			albums = append(albums, nil)
			continue
		}
		full := simplifiedAlbum(album)
		full["tracks"] = m.trackPage(r, album, 0, m.EmbeddedTrackLimit)
		albums = append(albums, full)
	}
	writeJSON(w, http.StatusOK, map[string]any{"albums": albums})
}

func (m *MockSpotify) serveArtists(w http.ResponseWriter, query map[string][]string) {
	ids := strings.Split(first(query["ids"]), ",")
	if len(ids) > 50 {
		writeError(w, http.StatusBadRequest, "too many ids requested")
		return
	}

	artists := make([]any, 0, len(ids))
	for _, id := range ids {
		a, ok := m.artists[id]
		if !ok {
			artists = append(artists, nil)
			continue
		}
		genres := a.Genres
		if genres == nil {
			genres = []string{}
		}
		artists = append(artists, map[string]any{
			"id":         a.ID,
			"name":       a.Name,
			"popularity": a.Popularity,
			"followers":  map[string]any{"href": nil, "total": a.Followers},
			"genres":     genres,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"artists": artists})
}

func (m *MockSpotify) trackPage(r *http.Request, album MockAlbum, offset, limit int) map[string]any {
	items := make([]map[string]any, 0, len(album.Tracks))
	for i, track := range album.Tracks {
		var id any
		if track.ID != "" {
			id = track.ID
		}
		items = append(items, map[string]any{
			"id":           id,
			"name":         track.Name,
			"track_number": i + 1,
			"disc_number":  1,
			"artists":      track.Artists,
		})
	}

	page := paging(r, items, offset, limit)
	if page["next"] != nil {
		// Embedded pages point at the per-album endpoint.
		page["next"] = fmt.Sprintf("http://%s/albums/%s/tracks?offset=%d&limit=%d", r.Host, album.ID, offset+limit, limit)
	}
	return page
}

func simplifiedAlbum(album MockAlbum) map[string]any {
	return map[string]any{
		"id":           album.ID,
		"name":         album.Name,
		"album_group":  album.Group,
		"album_type":   album.Group,
		"total_tracks": len(album.Tracks),
		"artists":      album.Artists,
	}
}

func paging[T any](r *http.Request, items []T, offset, limit int) map[string]any {
	total := len(items)
	start := min(offset, total)
	end := min(offset+limit, total)

	var next any
	if end < total {
		q := r.URL.Query()
		q.Set("offset", strconv.Itoa(end))
		q.Set("limit", strconv.Itoa(limit))
		next = fmt.Sprintf("http://%s%s?%s", r.Host, r.URL.Path, q.Encode())
	}

	page := items[start:end]
	if page == nil {
		page = []T{}
	}
	return map[string]any{
		"href":   r.URL.String(),
		"items":  page,
		"limit":  limit,
		"offset": offset,
		"total":  total,
		"next":   next,
	}
}

func pageParams(query map[string][]string, defaultLimit int) (int, int) {
	offset, _ := strconv.Atoi(first(query["offset"]))
	limit, err := strconv.Atoi(first(query["limit"]))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	return offset, limit
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func writeMockResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"status": status, "message": message},
	})
}

// NewHealthyResponse creates a standard 200 OK JSON response.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response. A negative
// retryAfter omits the Retry-After header.
func NewRateLimitResponse(retryAfter int) MockResponse {
	headers := map[string]string{
		"Content-Type": "application/json; charset=utf-8",
	}
	if retryAfter >= 0 {
		headers["Retry-After"] = strconv.Itoa(retryAfter)
	}
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": {"status": 429, "message": "API rate limit exceeded"}}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": {"status": 500, "message": "Server error"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": {"status": 404, "message": "Not found"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
