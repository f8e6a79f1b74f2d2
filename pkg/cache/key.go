package cache

import (
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a cached GET response within a manager's namespace.
type CacheKey struct {
	// Endpoint is the request path relative to the API base (e.g. "/albums")
	Endpoint string

	// QueryParams are the query parameters other than market, which the
	// manager namespace carries.
	QueryParams url.Values
}

// NewKey builds the key for a request. The market parameter is dropped so the
// same listing requested for two markets lands in two namespaces, not two keys.
func NewKey(endpoint string, query url.Values) CacheKey {
	params := make(url.Values, len(query))
	for k, v := range query {
		if k == "market" {
			continue
		}
		params[k] = v
	}
	return CacheKey{Endpoint: endpoint, QueryParams: params}
}

// String generates a deterministic key: the endpoint followed by the sorted
// query parameters.
//
// Example:
//
//	artists/abc/albums:include_groups=album,single:limit=50:offset=0
func (k CacheKey) String() string {
	var parts []string
	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	keys := make([]string, 0, len(k.QueryParams))
	for key := range k.QueryParams {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, key+"="+strings.Join(k.QueryParams[key], ","))
	}

	return strings.Join(parts, ":")
}
