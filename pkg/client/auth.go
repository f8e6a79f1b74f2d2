package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL is the Spotify accounts token endpoint.
const DefaultTokenURL = "https://accounts.spotify.com/api/token"

// ErrMissingCredentials is returned when the client id or secret is empty.
var ErrMissingCredentials = errors.New("spotify client id and secret are required")

// Credentials identify the application for the client-credentials grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Authenticate fetches an app token and returns an HTTP client that attaches
// and refreshes it. The token is fetched once up front so bad credentials or an
// unreachable token endpoint fail here, before any harvesting starts.
//
// Token refreshes are detached from ctx cancellation so an interrupt does not
// break the request in flight.
func Authenticate(ctx context.Context, creds Credentials, timeout time.Duration) (*http.Client, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}
	tokenURL := creds.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	base := &http.Client{Timeout: timeout}
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, base)
	source := cfg.TokenSource(tokenCtx)

	if _, err := source.Token(); err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}

	hc := oauth2.NewClient(tokenCtx, source)
	hc.Timeout = timeout
	return hc, nil
}
