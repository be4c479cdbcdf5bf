package auth

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/macaroon.v2"

	"github.com/rl1809/kitties/internal/core/domain"
)

func testRootKey() []byte {
	key := make([]byte, rootKeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestMacaroonAuthenticator(t *testing.T) {
	ctx := context.Background()
	authenticator, err := NewMacaroonAuthenticator(testRootKey())
	require.NoError(t, err)

	token, err := authenticator.Mint("alice", 0)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		account, err := authenticator.Authenticate(ctx, domain.Origin{Token: token})
		require.NoError(t, err)
		require.Equal(t, domain.AccountID("alice"), account)

		account, err = authenticator.Authenticate(ctx, domain.Origin{Account: "alice", Token: token})
		require.NoError(t, err)
		require.Equal(t, domain.AccountID("alice"), account)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := authenticator.Authenticate(ctx, domain.Origin{Account: "alice"})
		require.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("declared account must match", func(t *testing.T) {
		_, err := authenticator.Authenticate(ctx, domain.Origin{Account: "bob", Token: token})
		require.ErrorIs(t, err, ErrAccountMismatch)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := authenticator.Authenticate(ctx, domain.Origin{Token: "not-hex"})
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other root key", func(t *testing.T) {
		otherKey := testRootKey()
		otherKey[0] = 0xff
		other, err := NewMacaroonAuthenticator(otherKey)
		require.NoError(t, err)

		forged, err := other.Mint("alice", 0)
		require.NoError(t, err)

		_, err = authenticator.Authenticate(ctx, domain.Origin{Token: forged})
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("attenuated with another account", func(t *testing.T) {
		raw, err := hex.DecodeString(token)
		require.NoError(t, err)
		mac := &macaroon.Macaroon{}
		require.NoError(t, mac.UnmarshalBinary(raw))
		require.NoError(t, mac.AddFirstPartyCaveat([]byte("account = bob")))
		raw, err = mac.MarshalBinary()
		require.NoError(t, err)

		_, err = authenticator.Authenticate(ctx, domain.Origin{Token: hex.EncodeToString(raw)})
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		authenticator.now = func() time.Time { return now }
		defer func() { authenticator.now = time.Now }()

		shortLived, err := authenticator.Mint("alice", time.Minute)
		require.NoError(t, err)

		_, err = authenticator.Authenticate(ctx, domain.Origin{Token: shortLived})
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		_, err = authenticator.Authenticate(ctx, domain.Origin{Token: shortLived})
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewMacaroonAuthenticatorShortKey(t *testing.T) {
	_, err := NewMacaroonAuthenticator([]byte("short"))
	require.Error(t, err)
}

func TestLoadOrCreateRootKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "macaroon.key")

	key, err := LoadOrCreateRootKey(path)
	require.NoError(t, err)
	require.Len(t, key, rootKeySize)

	again, err := LoadOrCreateRootKey(path)
	require.NoError(t, err)
	require.Equal(t, key, again)
}

func TestTrustedAuthenticator(t *testing.T) {
	authenticator := NewTrustedAuthenticator()

	account, err := authenticator.Authenticate(context.Background(), domain.Origin{Account: "alice"})
	require.NoError(t, err)
	require.Equal(t, domain.AccountID("alice"), account)

	_, err = authenticator.Authenticate(context.Background(), domain.Origin{})
	require.ErrorIs(t, err, ErrMissingAccount)
}
