// Package ledger holds and moves the fungible asset escrowed by tasks.
//
// The Memory ledger is the reference Ledger Adapter: every balance mutation is
// all-or-nothing and serialized by a single mutex, matching the guarantees the
// task engine expects from its execution environment.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

var (
	// ErrInsufficientFunds is returned when the source cannot cover a move.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrBalanceOverflow is returned when a credit would overflow a balance.
	ErrBalanceOverflow = errors.New("balance overflow")

	// ErrInvalidAccount is returned for zero identities, self-moves, and
	// locks funded from an escrow account.
	ErrInvalidAccount = errors.New("invalid account")
)

// Account is a snapshot of one balance.
type Account struct {
	Identity auth.Identity `json:"identity"`
	Balance  uint64        `json:"balance"`
}

// Memory is an in-memory ledger. The zero value is not usable; use NewMemory.
type Memory struct {
	mu       sync.Mutex
	balances map[auth.Identity]uint64
	// escrows holds every account that has received a Lock. Only Transfer
	// may move funds out of one.
	escrows map[auth.Identity]struct{}

	metrics *Metrics
	logger  *zap.Logger
}

// NewMemory creates an empty ledger. metrics and logger may be nil.
func NewMemory(metrics *Metrics, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		balances: make(map[auth.Identity]uint64),
		escrows:  make(map[auth.Identity]struct{}),
		metrics:  metrics,
		logger:   logger.Named("ledger"),
	}
}

// Credit mints amount into id. Used for genesis funding and tests.
func (m *Memory) Credit(ctx context.Context, id auth.Identity, amount uint64) error {
	if id.IsZero() {
		return ErrInvalidAccount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next, carry := bits.Add64(m.balances[id], amount, 0)
	if carry != 0 {
		return fmt.Errorf("credit %s: %w", id, ErrBalanceOverflow)
	}
	m.balances[id] = next
	m.metrics.setAccounts(len(m.balances))
	return nil
}

// Lock moves amount from a funding account into an escrow holding account.
// An escrow account can never fund a Lock.
func (m *Memory) Lock(ctx context.Context, from, escrow auth.Identity, amount uint64) error {
	err := m.move(from, escrow, amount, true)
	m.metrics.observe(kindLock, amount, err)
	if err != nil {
		m.logger.Debug("lock rejected",
			zap.String("from", from.String()),
			zap.String("escrow", escrow.String()),
			zap.Uint64("amount", amount),
			zap.Error(err))
	}
	return err
}

// Transfer moves amount out of an escrow holding account to a recipient.
func (m *Memory) Transfer(ctx context.Context, escrow, to auth.Identity, amount uint64) error {
	err := m.move(escrow, to, amount, false)
	m.metrics.observe(kindTransfer, amount, err)
	if err != nil {
		m.logger.Debug("transfer rejected",
			zap.String("escrow", escrow.String()),
			zap.String("to", to.String()),
			zap.Uint64("amount", amount),
			zap.Error(err))
	}
	return err
}

// Balance returns the balance held by id. Unknown accounts hold zero.
func (m *Memory) Balance(ctx context.Context, id auth.Identity) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[id], nil
}

// Accounts returns every non-empty account sorted by identity.
func (m *Memory) Accounts() []Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Account, 0, len(m.balances))
	for id, bal := range m.balances {
		if bal == 0 {
			continue
		}
		out = append(out, Account{Identity: id, Balance: bal})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// IsEscrow reports whether id has ever received a Lock.
func (m *Memory) IsEscrow(id auth.Identity) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.escrows[id]
	return ok
}

// move checks both sides before touching either balance. A lock also
// marks to as an escrow account.
func (m *Memory) move(from, to auth.Identity, amount uint64, lock bool) error {
	if from.IsZero() || to.IsZero() || from == to {
		return ErrInvalidAccount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.escrows[from]; ok && lock {
		return fmt.Errorf("%w: escrow %s cannot fund a lock", ErrInvalidAccount, from)
	}

	src := m.balances[from]
	if src < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, src, amount)
	}
	dst, carry := bits.Add64(m.balances[to], amount, 0)
	if carry != 0 {
		return fmt.Errorf("credit %s: %w", to, ErrBalanceOverflow)
	}

	m.balances[from] = src - amount
	m.balances[to] = dst
	if lock {
		m.escrows[to] = struct{}{}
	}
	m.metrics.setAccounts(len(m.balances))
	return nil
}
