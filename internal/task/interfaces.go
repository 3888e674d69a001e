package task

import (
	"context"

	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

// Ledger moves the escrowed asset. Each call fully succeeds or fully fails.
type Ledger interface {
	// Lock moves amount from a funding account into escrow.
	Lock(ctx context.Context, from, escrow auth.Identity, amount uint64) error

	// Transfer moves amount out of escrow to a recipient.
	Transfer(ctx context.Context, escrow, to auth.Identity, amount uint64) error
}
