package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is the fallback lifetime when the response carries no caching headers.
const DefaultTTL = 24 * time.Hour

// Lifetime derives how long a response may be cached from Cache-Control, then
// Expires, then fallback (DefaultTTL when not positive). Zero means the
// response must not be stored.
func Lifetime(header http.Header, now time.Time, fallback time.Duration) time.Duration {
	if fallback <= 0 {
		fallback = DefaultTTL
	}

	if maxAge, noStore, ok := parseCacheControl(header.Get("Cache-Control")); ok {
		if noStore {
			return 0
		}
		return maxAge
	}

	if expiresStr := header.Get("Expires"); expiresStr != "" {
		if expires, err := http.ParseTime(expiresStr); err == nil && expires.After(now) {
			return expires.Sub(now)
		}
	}

	return fallback
}

// parseCacheControl reports a positive max-age and whether storing is
// forbidden. ok is false when the header states neither.
func parseCacheControl(value string) (maxAge time.Duration, noStore bool, ok bool) {
	for _, directive := range strings.Split(value, ",") {
		directive = strings.ToLower(strings.TrimSpace(directive))
		switch {
		case directive == "no-store":
			return 0, true, true
		case strings.HasPrefix(directive, "max-age="):
			secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
			if err != nil || secs <= 0 {
				continue
			}
			maxAge, ok = time.Duration(secs)*time.Second, true
		}
	}
	return maxAge, false, ok
}
