package auth

import (
	"context"
	"errors"

	"github.com/rl1809/kitties/internal/core/domain"
)

var ErrMissingAccount = errors.New("missing account")

// TrustedAuthenticator takes the declared account at face value. Only meant
// for local development and tests.
type TrustedAuthenticator struct{}

func NewTrustedAuthenticator() TrustedAuthenticator {
	return TrustedAuthenticator{}
}

func (TrustedAuthenticator) Authenticate(_ context.Context, origin domain.Origin) (domain.AccountID, error) {
	if origin.Account == "" {
		return "", ErrMissingAccount
	}
	return origin.Account, nil
}
