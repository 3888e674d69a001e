package task

import (
	"fmt"
	"math/bits"

	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

// ValidateAllocation checks a proposed allocation against t without
// mutating it. Checks run in a fixed order and the first failure wins:
// creator, shape, sum, then the one-shot flag. maxRecipients <= 0 means
// unbounded.
//
// Duplicate recipients are allowed; each occupies its own slot.
func ValidateAllocation(t *Task, caller auth.Identity, recipients []auth.Identity, amounts []uint64, maxRecipients int) error {
	if caller != t.Creator {
		return fmt.Errorf("%w: %s is not the creator of %q", ErrUnauthorized, caller, t.Name)
	}

	if len(recipients) != len(amounts) {
		return fmt.Errorf("%w: %d recipients but %d amounts", ErrInvalidRewardDistribution, len(recipients), len(amounts))
	}
	if maxRecipients > 0 && len(recipients) > maxRecipients {
		return fmt.Errorf("%w: %d recipients exceeds limit of %d", ErrInvalidRewardDistribution, len(recipients), maxRecipients)
	}
	for i, r := range recipients {
		if r.IsZero() {
			return fmt.Errorf("%w: recipient %d is empty", ErrInvalidRewardDistribution, i)
		}
		if r == t.Vault {
			return fmt.Errorf("%w: recipient %d is the task vault", ErrInvalidRewardDistribution, i)
		}
	}

	sum, ok := sumAmounts(amounts)
	if !ok {
		return fmt.Errorf("%w: amounts overflow", ErrInvalidRewardDistribution)
	}
	if sum != t.LockedAmount {
		return fmt.Errorf("%w: amounts sum to %d, locked %d", ErrInvalidRewardDistribution, sum, t.LockedAmount)
	}

	if t.AllocationSubmitted {
		return fmt.Errorf("%w: task %q", ErrAllocationAlreadySubmitted, t.Name)
	}
	return nil
}

// sumAmounts adds amounts, reporting false on uint64 overflow.
func sumAmounts(amounts []uint64) (uint64, bool) {
	var sum, carry uint64
	for _, a := range amounts {
		sum, carry = bits.Add64(sum, a, 0)
		if carry != 0 {
			return 0, false
		}
	}
	return sum, true
}
