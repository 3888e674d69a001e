package task

import (
	"fmt"

	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

// resolveClaim returns the slot caller redeems next: the first index in
// recipient order that names caller and is still unclaimed.
func resolveClaim(t *Task, caller auth.Identity) (int, error) {
	if !t.AllocationSubmitted {
		return -1, fmt.Errorf("%w: task %q", ErrRewardDistributionNotSubmitted, t.Name)
	}

	matched := false
	for i, r := range t.Recipients {
		if r != caller {
			continue
		}
		matched = true
		if !t.Claimed[i] {
			return i, nil
		}
	}

	if !matched {
		return -1, fmt.Errorf("%w: %s is not a recipient of %q", ErrNotEligible, caller, t.Name)
	}
	return -1, fmt.Errorf("%w: %s on %q", ErrRewardAlreadyClaimed, caller, t.Name)
}
