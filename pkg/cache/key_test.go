package cache

import (
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "endpoint only",
			key:  CacheKey{Endpoint: "/albums/abc/tracks"},
			want: "albums/abc/tracks",
		},
		{
			name: "query params are sorted",
			key: CacheKey{
				Endpoint: "/artists/abc/albums",
				QueryParams: url.Values{
					"offset":         []string{"50"},
					"include_groups": []string{"album,single"},
					"limit":          []string{"50"},
				},
			},
			want: "artists/abc/albums:include_groups=album,single:limit=50:offset=50",
		},
		{
			name: "multi-valued param is joined",
			key: CacheKey{
				Endpoint:    "/albums",
				QueryParams: url.Values{"ids": []string{"a", "b"}},
			},
			want: "albums:ids=a,b",
		},
		{
			name: "empty key",
			key:  CacheKey{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewKey_DropsMarket(t *testing.T) {
	query := url.Values{"ids": []string{"a,b"}, "market": []string{"US"}}

	us := NewKey("/albums", query)
	de := NewKey("/albums", url.Values{"ids": []string{"a,b"}, "market": []string{"DE"}})

	if us.String() != "albums:ids=a,b" {
		t.Errorf("String() = %q, want %q", us.String(), "albums:ids=a,b")
	}
	if us.String() != de.String() {
		t.Errorf("keys differ by market: %q vs %q", us.String(), de.String())
	}
	if query.Get("market") != "US" {
		t.Error("NewKey modified the request query")
	}
}
