package identity

import (
	"context"
	"sync"
)

// StaticProvider backs the local demo deployment, where no hosted identity
// provider is configured. Any presented token resolves to the single demo
// account; role claims are kept in memory only. The unguarded sign-up webhook
// can write claims while guarded requests read them, so access goes through
// the mutex and callers always get their own copy of the claims map.
type StaticProvider struct {
	mu     sync.RWMutex
	user   User
	claims map[string]string
}

func NewStaticProvider(uid, name string, role string) *StaticProvider {
	return &StaticProvider{
		user:   User{UID: uid, Name: name},
		claims: map[string]string{ClaimRole: role},
	}
}

func (p *StaticProvider) Ping(ctx context.Context) error {
	return nil
}

func (p *StaticProvider) VerifyToken(ctx context.Context, token string) (*User, error) {
	return p.snapshot(), nil
}

func (p *StaticProvider) RefreshUser(ctx context.Context, uid string) (*User, error) {
	return p.snapshot(), nil
}

func (p *StaticProvider) SetRoleClaim(ctx context.Context, uid, role string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	claims := make(map[string]string, len(p.claims)+1)
	for k, v := range p.claims {
		claims[k] = v
	}
	claims[ClaimRole] = role
	p.claims = claims
	return nil
}

func (p *StaticProvider) snapshot() *User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u := p.user
	u.Claims = make(map[string]string, len(p.claims))
	for k, v := range p.claims {
		u.Claims[k] = v
	}
	return &u
}
