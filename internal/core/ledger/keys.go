package ledger

import "github.com/rl1809/kitties/internal/core/domain"

const (
	kittyKeyPrefix = "kitty:"
	ownerKeyPrefix = "owner:"
	countKey       = "kitty_count"

	DefaultCapacity = 10
)

func kittyKey(dna domain.DNA) string {
	return kittyKeyPrefix + dna.String()
}

func ownerKey(owner domain.AccountID) string {
	return ownerKeyPrefix + string(owner)
}
