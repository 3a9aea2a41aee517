package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

type fakeProvider struct {
	mu           sync.Mutex
	pingErr      error
	verifyUser   *User
	verifyErr    error
	verifyDelay  time.Duration
	refreshUser  *User
	refreshErr   error
	refreshCalls int
}

func (f *fakeProvider) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeProvider) VerifyToken(ctx context.Context, token string) (*User, error) {
	if f.verifyDelay > 0 {
		time.Sleep(f.verifyDelay)
	}
	return f.verifyUser, f.verifyErr
}

func (f *fakeProvider) RefreshUser(ctx context.Context, uid string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	return f.refreshUser, f.refreshErr
}

func (f *fakeProvider) SetRoleClaim(ctx context.Context, uid, role string) error {
	return nil
}

// memoryCache is a map-backed CacheService for tests.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	raw, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memoryCache) DeletePattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string][]byte{}
	return nil
}

func quietLogger() utils.Logger {
	return utils.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestResolver_NilUserDefaultsToParent(t *testing.T) {
	r := NewResolver(&fakeProvider{}, nil, quietLogger())
	assert.Equal(t, models.RoleParent, r.Resolve(context.Background(), nil))
}

func TestResolver_ClaimPresentSkipsRefresh(t *testing.T) {
	provider := &fakeProvider{}
	r := NewResolver(provider, nil, quietLogger())

	usr := &User{UID: "u1", Claims: map[string]string{ClaimRole: "teacher"}}
	assert.Equal(t, models.RoleTeacher, r.Resolve(context.Background(), usr))
	assert.Equal(t, 0, provider.refreshCalls)
}

func TestResolver_MissingClaimForcesOneRefresh(t *testing.T) {
	provider := &fakeProvider{
		refreshUser: &User{UID: "u1", Claims: map[string]string{ClaimRole: "rm"}},
	}
	r := NewResolver(provider, nil, quietLogger())

	usr := &User{UID: "u1"}
	assert.Equal(t, models.RoleRegionalManager, r.Resolve(context.Background(), usr))
	assert.Equal(t, 1, provider.refreshCalls)
}

func TestResolver_RefreshWithoutClaimDefaultsToParent(t *testing.T) {
	provider := &fakeProvider{refreshUser: &User{UID: "u1"}}
	r := NewResolver(provider, nil, quietLogger())

	assert.Equal(t, models.RoleParent, r.Resolve(context.Background(), &User{UID: "u1"}))
	assert.Equal(t, 1, provider.refreshCalls)
}

func TestResolver_RefreshErrorDefaultsToParent(t *testing.T) {
	provider := &fakeProvider{refreshErr: errors.New("provider down")}
	r := NewResolver(provider, nil, quietLogger())

	assert.Equal(t, models.RoleParent, r.Resolve(context.Background(), &User{UID: "u1"}))
}

func TestResolver_UnknownClaimTreatedAsAbsent(t *testing.T) {
	provider := &fakeProvider{
		refreshUser: &User{UID: "u1", Claims: map[string]string{ClaimRole: "admin"}},
	}
	r := NewResolver(provider, nil, quietLogger())

	usr := &User{UID: "u1", Claims: map[string]string{ClaimRole: "superuser"}}
	assert.Equal(t, models.RoleAdmin, r.Resolve(context.Background(), usr))
	assert.Equal(t, 1, provider.refreshCalls)
}

func TestResolver_CachedRoleShortCircuits(t *testing.T) {
	provider := &fakeProvider{}
	cacheSvc := newMemoryCache()
	r := NewResolver(provider, cacheSvc, quietLogger())

	usr := &User{UID: "u1", Claims: map[string]string{ClaimRole: "teacher"}}
	assert.Equal(t, models.RoleTeacher, r.Resolve(context.Background(), usr))

	// Claims gone, but the cache still answers.
	bare := &User{UID: "u1"}
	assert.Equal(t, models.RoleTeacher, r.Resolve(context.Background(), bare))
	assert.Equal(t, 0, provider.refreshCalls)

	// Invalidation forces the refresh path again.
	r.Invalidate(context.Background(), "u1")
	provider.refreshUser = &User{UID: "u1", Claims: map[string]string{ClaimRole: "admin"}}
	assert.Equal(t, models.RoleAdmin, r.Resolve(context.Background(), bare))
	assert.Equal(t, 1, provider.refreshCalls)
}
