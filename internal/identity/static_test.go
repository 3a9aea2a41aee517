package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProvider_AnyTokenResolvesToDemoUser(t *testing.T) {
	p := NewStaticProvider("t_demo", "Teacher", "teacher")

	usr, err := p.VerifyToken(context.Background(), "whatever")
	require.NoError(t, err)
	assert.Equal(t, "t_demo", usr.UID)
	assert.Equal(t, "teacher", usr.Claims[ClaimRole])
}

func TestStaticProvider_SetRoleClaimVisibleOnRefresh(t *testing.T) {
	p := NewStaticProvider("t_demo", "Teacher", "teacher")
	ctx := context.Background()

	require.NoError(t, p.SetRoleClaim(ctx, "t_demo", "admin"))

	refreshed, err := p.RefreshUser(ctx, "t_demo")
	require.NoError(t, err)
	assert.Equal(t, "admin", refreshed.Claims[ClaimRole])
}

func TestStaticProvider_CallersOwnTheirClaims(t *testing.T) {
	p := NewStaticProvider("t_demo", "Teacher", "teacher")
	ctx := context.Background()

	usr, err := p.VerifyToken(ctx, "tok")
	require.NoError(t, err)

	// Mutating a returned user must not leak into later callers.
	usr.Claims[ClaimRole] = "admin"

	other, err := p.VerifyToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "teacher", other.Claims[ClaimRole])
}

// Claim writes from the sign-up webhook race against claim reads from guarded
// requests; run with -race.
func TestStaticProvider_ConcurrentClaimReadsAndWrites(t *testing.T) {
	p := NewStaticProvider("t_demo", "Teacher", "teacher")
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				_ = p.SetRoleClaim(ctx, "t_demo", "parent")
			} else {
				_ = p.SetRoleClaim(ctx, "t_demo", "teacher")
			}
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			usr, err := p.VerifyToken(ctx, "tok")
			if assert.NoError(t, err) {
				_ = usr.Claims[ClaimRole]
			}
		}
	}()

	wg.Wait()

	usr, err := p.RefreshUser(ctx, "t_demo")
	require.NoError(t, err)
	assert.Contains(t, []string{"parent", "teacher"}, usr.Claims[ClaimRole])
}
