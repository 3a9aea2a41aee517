package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tinysteps-edu/dashboard-service/internal/cache"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

// ErrBootstrapTimeout means the identity provider did not become reachable
// within the wait window. The route guard treats it fail-open; explicit
// callers (backend selection) treat it fail-closed.
var ErrBootstrapTimeout = errors.New("identity bootstrap timed out")

const probeInterval = 200 * time.Millisecond

// Session is the single per-process identity handle. It is constructed once
// at application start and passed to every component that needs it; nothing
// else may build a second one against the same provider.
type Session struct {
	provider Provider
	cache    cache.CacheService
	logger   utils.Logger

	startOnce sync.Once
	ready     chan struct{}
}

func NewSession(provider Provider, cacheSvc cache.CacheService, logger utils.Logger) *Session {
	return &Session{
		provider: provider,
		cache:    cacheSvc,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Start launches the readiness probe in the background. Safe to call any
// number of times; only the first call has an effect.
func (s *Session) Start(ctx context.Context) *Session {
	s.startOnce.Do(func() {
		go s.probe(ctx)
	})
	return s
}

// Ready is closed once the provider has answered a probe. Late subscribers
// observe the already-closed channel.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

func (s *Session) probe(ctx context.Context) {
	// Durable cross-instance session state is best effort: a blocked store
	// downgrades to in-memory, never a hard failure.
	if s.cache != nil {
		if err := s.cache.Set(ctx, "identity:persistence-probe", 1, time.Minute); err != nil {
			s.logger.Warn("durable session persistence unavailable, continuing in-memory", "error", err)
		}
	}

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		if err := s.provider.Ping(ctx); err == nil {
			close(s.ready)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// AwaitReady blocks until the provider is reachable, the timeout elapses
// (ErrBootstrapTimeout) or ctx is done.
func (s *Session) AwaitReady(ctx context.Context, timeout time.Duration) error {
	select {
	case <-s.ready:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.ready:
		return nil
	case <-timer.C:
		return ErrBootstrapTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitUser resolves the authenticated user carried by token. The first of
// {verification result, timeout} wins; the loser is a no-op. A timeout or an
// invalid token yields (nil, nil), meaning "no user", so the caller decides
// whether that means redirect or fail-open. Only context cancellation is an
// error.
func (s *Session) AwaitUser(ctx context.Context, token string, timeout time.Duration) (*User, error) {
	if token == "" {
		return nil, nil
	}

	type outcome struct {
		usr *User
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		usr, err := s.provider.VerifyToken(ctx, token)
		ch <- outcome{usr, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case out := <-ch:
		if out.err != nil {
			s.logger.Debug("token verification failed", "error", out.err)
			return nil, nil
		}
		return out.usr, nil
	case <-timer.C:
		s.logger.Warn("auth state wait timed out, treating as signed out")
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
