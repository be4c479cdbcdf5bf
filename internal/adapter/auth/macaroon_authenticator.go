package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/macaroon.v2"

	"github.com/rl1809/kitties/internal/core/domain"
)

const (
	macaroonLocation = "kitties"
	rootKeySize      = 32

	accountCaveatPrefix = "account = "
	expiryCaveatPrefix  = "time-before "
)

var (
	ErrMissingToken    = errors.New("missing macaroon")
	ErrInvalidToken    = errors.New("invalid macaroon")
	ErrAccountMismatch = errors.New("macaroon was issued to another account")
)

// MacaroonAuthenticator accepts macaroons minted with its root key. The
// account is bound by an "account = <id>" caveat and an optional
// "time-before <RFC3339>" caveat bounds the token lifetime.
type MacaroonAuthenticator struct {
	rootKey []byte
	now     func() time.Time
}

func NewMacaroonAuthenticator(rootKey []byte) (*MacaroonAuthenticator, error) {
	if len(rootKey) < rootKeySize {
		return nil, fmt.Errorf("root key must be at least %d bytes", rootKeySize)
	}
	return &MacaroonAuthenticator{rootKey: rootKey, now: time.Now}, nil
}

// Mint returns a hex encoded macaroon for account. A zero ttl never expires.
func (a *MacaroonAuthenticator) Mint(account domain.AccountID, ttl time.Duration) (string, error) {
	if account == "" {
		return "", fmt.Errorf("account is required")
	}

	mac, err := macaroon.New(a.rootKey, []byte(uuid.NewString()), macaroonLocation, macaroon.LatestVersion)
	if err != nil {
		return "", fmt.Errorf("bake macaroon: %w", err)
	}
	if err := mac.AddFirstPartyCaveat([]byte(accountCaveatPrefix + string(account))); err != nil {
		return "", err
	}
	if ttl > 0 {
		expiry := a.now().Add(ttl).UTC().Format(time.RFC3339)
		if err := mac.AddFirstPartyCaveat([]byte(expiryCaveatPrefix + expiry)); err != nil {
			return "", err
		}
	}

	raw, err := mac.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize macaroon: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

func (a *MacaroonAuthenticator) Authenticate(_ context.Context, origin domain.Origin) (domain.AccountID, error) {
	if origin.Token == "" {
		return "", ErrMissingToken
	}

	raw, err := hex.DecodeString(origin.Token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var account domain.AccountID
	check := func(caveat string) error {
		switch {
		case strings.HasPrefix(caveat, accountCaveatPrefix):
			id := domain.AccountID(strings.TrimPrefix(caveat, accountCaveatPrefix))
			if account != "" && account != id {
				return fmt.Errorf("conflicting account caveats")
			}
			account = id
			return nil
		case strings.HasPrefix(caveat, expiryCaveatPrefix):
			expiry, err := time.Parse(time.RFC3339, strings.TrimPrefix(caveat, expiryCaveatPrefix))
			if err != nil {
				return fmt.Errorf("invalid expiry caveat: %w", err)
			}
			if !a.now().Before(expiry) {
				return fmt.Errorf("macaroon expired at %s", expiry)
			}
			return nil
		default:
			return fmt.Errorf("unknown caveat %q", caveat)
		}
	}
	if err := mac.Verify(a.rootKey, check, nil); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if account == "" {
		return "", fmt.Errorf("%w: no account caveat", ErrInvalidToken)
	}
	if origin.Account != "" && origin.Account != account {
		return "", ErrAccountMismatch
	}
	return account, nil
}

// LoadOrCreateRootKey reads the root key stored at path, generating and
// persisting a fresh one if the file does not exist yet.
func LoadOrCreateRootKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("decode root key %s: %w", path, err)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read root key %s: %w", path, err)
	}

	key := make([]byte, rootKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, fmt.Errorf("write root key %s: %w", path, err)
	}
	return key, nil
}
