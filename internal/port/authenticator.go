package port

import (
	"context"

	"github.com/rl1809/kitties/internal/core/domain"
)

type Authenticator interface {
	// Authenticate resolves request credentials to the calling account
	Authenticate(ctx context.Context, origin domain.Origin) (domain.AccountID, error)
}
