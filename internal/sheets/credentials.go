package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ServiceAccountFetcher exchanges a service account key for an access token.
// It satisfies syncrun.TokenFetcher; the Runtime decides when to call it.
type ServiceAccountFetcher struct {
	key    []byte
	scopes []string
}

// NewServiceAccountFetcher parses key eagerly so a bad key fails at startup.
func NewServiceAccountFetcher(key []byte, scopes ...string) (*ServiceAccountFetcher, error) {
	if len(key) == 0 {
		return nil, errors.New("sheets: service account key is empty")
	}
	if len(scopes) == 0 {
		scopes = []string{Scope}
	}
	if _, err := google.JWTConfigFromJSON(key, scopes...); err != nil {
		return nil, fmt.Errorf("sheets: parse service account key: %w", err)
	}
	return &ServiceAccountFetcher{key: key, scopes: scopes}, nil
}

// LoadServiceAccountFetcher reads the key from path.
func LoadServiceAccountFetcher(path string, scopes ...string) (*ServiceAccountFetcher, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sheets: read service account key: %w", err)
	}
	return NewServiceAccountFetcher(key, scopes...)
}

// FetchToken performs one token exchange.
func (f *ServiceAccountFetcher) FetchToken(ctx context.Context) (*oauth2.Token, error) {
	cfg, err := google.JWTConfigFromJSON(f.key, f.scopes...)
	if err != nil {
		return nil, fmt.Errorf("sheets: parse service account key: %w", err)
	}
	tok, err := cfg.TokenSource(ctx).Token()
	if err != nil {
		return nil, fmt.Errorf("sheets: exchange token: %w", err)
	}
	return tok, nil
}
