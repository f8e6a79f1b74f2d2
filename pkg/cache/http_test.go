package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestLifetime(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fallback := time.Hour

	tests := []struct {
		name   string
		header http.Header
		want   time.Duration
	}{
		{
			name:   "no caching headers uses fallback",
			header: http.Header{},
			want:   fallback,
		},
		{
			name:   "max-age wins over expires",
			header: http.Header{"Cache-Control": []string{"public, max-age=300"}, "Expires": []string{now.Add(48 * time.Hour).Format(http.TimeFormat)}},
			want:   300 * time.Second,
		},
		{
			name:   "zero max-age falls through to fallback",
			header: http.Header{"Cache-Control": []string{"private, max-age=0"}},
			want:   fallback,
		},
		{
			name:   "no-store is not cached",
			header: http.Header{"Cache-Control": []string{"no-store"}},
			want:   0,
		},
		{
			name:   "future expires",
			header: http.Header{"Expires": []string{now.Add(2 * time.Hour).Format(http.TimeFormat)}},
			want:   2 * time.Hour,
		},
		{
			name:   "past expires falls through to fallback",
			header: http.Header{"Expires": []string{now.Add(-2 * time.Hour).Format(http.TimeFormat)}},
			want:   fallback,
		},
		{
			name:   "unparseable expires",
			header: http.Header{"Expires": []string{"soon"}},
			want:   fallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Lifetime(tt.header, now, fallback); got != tt.want {
				t.Errorf("Lifetime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLifetime_DefaultFallback(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := Lifetime(http.Header{}, now, 0); got != DefaultTTL {
		t.Errorf("Lifetime() = %v, want %v", got, DefaultTTL)
	}
}
