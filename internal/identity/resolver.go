package identity

import (
	"context"
	"time"

	"github.com/tinysteps-edu/dashboard-service/internal/cache"
	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/utils"
)

const roleCacheTTL = 5 * time.Minute

// Resolver maps an authenticated identity to its authorization role.
//
// Role claims are set asynchronously after account creation and role
// assignment, so a token minted in between may not carry one yet. A single
// forced refresh covers that race; the resolver never polls.
type Resolver struct {
	provider Provider
	cache    cache.CacheService // optional
	logger   utils.Logger
}

func NewResolver(provider Provider, cacheSvc cache.CacheService, logger utils.Logger) *Resolver {
	return &Resolver{
		provider: provider,
		cache:    cacheSvc,
		logger:   logger,
	}
}

// Resolve returns the user's role. Reads the cached claim first, forces
// exactly one refresh when the claim is absent, and falls back to the default
// parent role on any failure. Never returns an error: an unresolvable role is
// a parent by contract.
func (r *Resolver) Resolve(ctx context.Context, usr *User) models.UserRole {
	if usr == nil {
		return models.DefaultRole
	}

	if r.cache != nil {
		var cached models.UserRole
		if err := r.cache.Get(ctx, roleKey(usr.UID), &cached); err == nil && cached.Valid() {
			return cached
		}
	}

	if role, ok := claimRole(usr); ok {
		r.remember(ctx, usr.UID, role)
		return role
	}

	refreshed, err := r.provider.RefreshUser(ctx, usr.UID)
	if err != nil {
		r.logger.Debug("role refresh failed, defaulting to parent", "uid", usr.UID, "error", err)
		return models.DefaultRole
	}
	if role, ok := claimRole(refreshed); ok {
		r.remember(ctx, usr.UID, role)
		return role
	}
	return models.DefaultRole
}

// Invalidate drops the cached role, forcing the next Resolve to consult the
// claim again. Called after the privileged role assignment.
func (r *Resolver) Invalidate(ctx context.Context, uid string) {
	if r.cache != nil {
		if err := r.cache.Delete(ctx, roleKey(uid)); err != nil {
			r.logger.Warn("failed to invalidate cached role", "uid", uid, "error", err)
		}
	}
}

func (r *Resolver) remember(ctx context.Context, uid string, role models.UserRole) {
	if r.cache != nil {
		if err := r.cache.Set(ctx, roleKey(uid), role, roleCacheTTL); err != nil {
			r.logger.Debug("failed to cache role", "uid", uid, "error", err)
		}
	}
}

// claimRole reads a recognized role off the user's claims. An unknown value
// is treated the same as an absent claim.
func claimRole(usr *User) (models.UserRole, bool) {
	if usr == nil {
		return "", false
	}
	raw, ok := usr.Claims[ClaimRole]
	if !ok || raw == "" {
		return "", false
	}
	role := models.UserRole(raw)
	if !role.Valid() {
		return "", false
	}
	return role, true
}

func roleKey(uid string) string {
	return "role:" + uid
}
