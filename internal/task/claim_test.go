package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

func TestResolveClaim(t *testing.T) {
	task := &Task{
		Name:                "alpha",
		AllocationSubmitted: true,
		Recipients:          []auth.Identity{x, y, x},
		Amounts:             []uint64{1, 2, 3},
		Claimed:             []bool{false, false, false},
	}

	i, err := resolveClaim(task, x)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	task.Claimed[0] = true
	i, err = resolveClaim(task, x)
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	task.Claimed[2] = true
	_, err = resolveClaim(task, x)
	assert.ErrorIs(t, err, ErrRewardAlreadyClaimed)

	_, err = resolveClaim(task, z)
	assert.ErrorIs(t, err, ErrNotEligible)

	i, err = resolveClaim(task, y)
	require.NoError(t, err)
	assert.Equal(t, 1, i)
}

func TestResolveClaim_BeforeSubmission(t *testing.T) {
	_, err := resolveClaim(&Task{Name: "alpha"}, x)
	assert.ErrorIs(t, err, ErrRewardDistributionNotSubmitted)
}
