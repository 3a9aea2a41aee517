package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_AwaitReadySucceedsAfterProbe(t *testing.T) {
	provider := &fakeProvider{}
	s := NewSession(provider, nil, quietLogger()).Start(context.Background())

	err := s.AwaitReady(context.Background(), time.Second)
	assert.NoError(t, err)

	// Late subscriber sees the closed channel immediately.
	select {
	case <-s.Ready():
	default:
		t.Fatal("ready channel not closed")
	}
}

func TestSession_AwaitReadyTimesOutWhenProviderDown(t *testing.T) {
	provider := &fakeProvider{pingErr: errors.New("unreachable")}
	s := NewSession(provider, nil, quietLogger()).Start(context.Background())

	err := s.AwaitReady(context.Background(), 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrBootstrapTimeout)
}

func TestSession_StartIsIdempotent(t *testing.T) {
	provider := &fakeProvider{}
	s := NewSession(provider, nil, quietLogger())
	assert.Same(t, s, s.Start(context.Background()))
	assert.Same(t, s, s.Start(context.Background()))

	require.NoError(t, s.AwaitReady(context.Background(), time.Second))
}

func TestSession_AwaitUserEmptyTokenIsSignedOut(t *testing.T) {
	s := NewSession(&fakeProvider{}, nil, quietLogger())
	usr, err := s.AwaitUser(context.Background(), "", time.Second)
	assert.NoError(t, err)
	assert.Nil(t, usr)
}

func TestSession_AwaitUserReturnsVerifiedUser(t *testing.T) {
	provider := &fakeProvider{verifyUser: &User{UID: "u1"}}
	s := NewSession(provider, nil, quietLogger())

	usr, err := s.AwaitUser(context.Background(), "token", time.Second)
	require.NoError(t, err)
	require.NotNil(t, usr)
	assert.Equal(t, "u1", usr.UID)
}

func TestSession_AwaitUserInvalidTokenIsSignedOut(t *testing.T) {
	provider := &fakeProvider{verifyErr: errors.New("bad signature")}
	s := NewSession(provider, nil, quietLogger())

	usr, err := s.AwaitUser(context.Background(), "token", time.Second)
	assert.NoError(t, err)
	assert.Nil(t, usr)
}

func TestSession_AwaitUserTimeoutIsSignedOut(t *testing.T) {
	provider := &fakeProvider{verifyUser: &User{UID: "u1"}, verifyDelay: 300 * time.Millisecond}
	s := NewSession(provider, nil, quietLogger())

	usr, err := s.AwaitUser(context.Background(), "token", 50*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, usr)
}

func TestSession_AwaitUserContextCancelIsError(t *testing.T) {
	provider := &fakeProvider{verifyUser: &User{UID: "u1"}, verifyDelay: 300 * time.Millisecond}
	s := NewSession(provider, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.AwaitUser(ctx, "token", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
