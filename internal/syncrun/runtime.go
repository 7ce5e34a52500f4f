package syncrun

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
)

// TokenFetcher obtains a fresh credential for the remote grid source.
type TokenFetcher interface {
	FetchToken(ctx context.Context) (*oauth2.Token, error)
}

// DefaultExpirySkew refreshes credentials this long before they expire.
const DefaultExpirySkew = 2 * time.Minute

// Runtime is the process-wide state shared by sync entry points: the cached
// remote credential and the "sweep in progress" latch.
type Runtime struct {
	fetcher TokenFetcher
	skew    time.Duration
	now     func() time.Time

	mu    sync.Mutex
	token *oauth2.Token

	running atomic.Bool
}

// NewRuntime returns a runtime. A nil fetcher means the source needs no
// credentials, and EnsureFresh becomes a no-op.
func NewRuntime(fetcher TokenFetcher) *Runtime {
	return &Runtime{
		fetcher: fetcher,
		skew:    DefaultExpirySkew,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Stale reports whether the cached credential is missing or about to expire.
func (r *Runtime) Stale() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.staleLocked()
}

func (r *Runtime) staleLocked() bool {
	if r.token == nil || r.token.AccessToken == "" {
		return true
	}
	if r.token.Expiry.IsZero() {
		return false
	}
	return !r.now().Add(r.skew).Before(r.token.Expiry)
}

// Refresh fetches a new credential unconditionally.
func (r *Runtime) Refresh(ctx context.Context) error {
	if r == nil || r.fetcher == nil {
		return nil
	}
	tok, err := r.fetcher.FetchToken(ctx)
	if err != nil {
		return fmt.Errorf("syncrun: fetch token: %w", err)
	}
	if tok == nil || tok.AccessToken == "" {
		return errors.New("syncrun: fetch token: empty token")
	}
	r.mu.Lock()
	r.token = tok
	r.mu.Unlock()
	return nil
}

// EnsureFresh refreshes the credential only when it is stale.
func (r *Runtime) EnsureFresh(ctx context.Context) error {
	if r == nil || r.fetcher == nil {
		return nil
	}
	if !r.Stale() {
		return nil
	}
	return r.Refresh(ctx)
}

// Token returns the cached credential, refreshing it when stale.
func (r *Runtime) Token(ctx context.Context) (*oauth2.Token, error) {
	if err := r.EnsureFresh(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token == nil {
		return nil, errors.New("syncrun: no credential configured")
	}
	cp := *r.token
	return &cp, nil
}

// TokenSource adapts the runtime to oauth2 clients. ctx is used for refreshes.
func (r *Runtime) TokenSource(ctx context.Context) oauth2.TokenSource {
	return runtimeTokenSource{ctx: ctx, rt: r}
}

type runtimeTokenSource struct {
	ctx context.Context
	rt  *Runtime
}

func (s runtimeTokenSource) Token() (*oauth2.Token, error) {
	return s.rt.Token(s.ctx)
}

// TryBegin takes the sweep latch. It returns false when a sweep is running.
func (r *Runtime) TryBegin() bool {
	return r.running.CompareAndSwap(false, true)
}

// End releases the sweep latch.
func (r *Runtime) End() {
	r.running.Store(false)
}

// Running reports whether a sweep holds the latch.
func (r *Runtime) Running() bool {
	return r.running.Load()
}
