package identity

import (
	"context"
	"fmt"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"

	"github.com/tinysteps-edu/dashboard-service/internal/config"
)

// ClaimRole is the custom claim carrying the authorization role.
const ClaimRole = "role"

// User is the provider-agnostic view of an authenticated identity. Claims
// reflect the token (or profile) the user was loaded from and may lag behind
// the provider until a refresh.
type User struct {
	UID    string            `json:"uid"`
	Name   string            `json:"name"`
	Email  string            `json:"email"`
	Claims map[string]string `json:"claims"`
}

// Provider abstracts the hosted identity service.
type Provider interface {
	// Ping verifies the provider is reachable.
	Ping(ctx context.Context) error

	// VerifyToken validates a signed identity token and returns the user it
	// represents, with the token's cached claims.
	VerifyToken(ctx context.Context, token string) (*User, error)

	// RefreshUser re-reads the user from the provider, bypassing any cached
	// claims. Used when a freshly assigned role claim has not landed in the
	// token yet.
	RefreshUser(ctx context.Context, uid string) (*User, error)

	// SetRoleClaim writes the role custom claim on the target account.
	SetRoleClaim(ctx context.Context, uid, role string) error
}

// CasdoorProvider implements Provider against a Casdoor deployment.
type CasdoorProvider struct {
	client *casdoorsdk.Client
}

func NewCasdoorProvider(cfg config.IdentityConfig) *CasdoorProvider {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Certificate,
		cfg.Organization,
		cfg.Application,
	)
	return &CasdoorProvider{client: client}
}

func (p *CasdoorProvider) Ping(ctx context.Context) error {
	if _, err := p.client.GetUsers(); err != nil {
		return fmt.Errorf("identity provider unreachable: %w", err)
	}
	return nil
}

func (p *CasdoorProvider) VerifyToken(ctx context.Context, token string) (*User, error) {
	claims, err := p.client.ParseJwtToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid identity token: %w", err)
	}
	return fromCasdoorUser(&claims.User), nil
}

func (p *CasdoorProvider) RefreshUser(ctx context.Context, uid string) (*User, error) {
	cu, err := p.client.GetUserByUserId(uid)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh user %s: %w", uid, err)
	}
	if cu == nil {
		return nil, fmt.Errorf("user %s not found", uid)
	}
	return fromCasdoorUser(cu), nil
}

func (p *CasdoorProvider) SetRoleClaim(ctx context.Context, uid, role string) error {
	cu, err := p.client.GetUserByUserId(uid)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", uid, err)
	}
	if cu == nil {
		return fmt.Errorf("user %s not found", uid)
	}
	if cu.Properties == nil {
		cu.Properties = make(map[string]string)
	}
	cu.Properties[ClaimRole] = role
	ok, err := p.client.UpdateUser(cu)
	if err != nil {
		return fmt.Errorf("failed to update role claim for %s: %w", uid, err)
	}
	if !ok {
		return fmt.Errorf("role claim update for %s was rejected", uid)
	}
	return nil
}

func fromCasdoorUser(cu *casdoorsdk.User) *User {
	claims := make(map[string]string, len(cu.Properties))
	for k, v := range cu.Properties {
		claims[k] = v
	}
	name := cu.DisplayName
	if name == "" {
		name = cu.Name
	}
	return &User{
		UID:    cu.Id,
		Name:   name,
		Email:  cu.Email,
		Claims: claims,
	}
}
