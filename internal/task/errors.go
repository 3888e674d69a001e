package task

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/escrowd/internal/ledger"
)

// Lifecycle errors.
var (
	ErrTaskNotFound                   = errors.New("task not found")
	ErrUnauthorized                   = errors.New("unauthorized")
	ErrInvalidRewardDistribution      = errors.New("invalid reward distribution")
	ErrRewardDistributionNotSubmitted = errors.New("reward distribution not submitted")
	ErrNotEligible                    = errors.New("not eligible")
	ErrRewardAlreadyClaimed           = errors.New("reward already claimed")
	ErrAllocationAlreadySubmitted     = errors.New("allocation already submitted")
)

// Creation errors.
var (
	ErrInvalidTaskName   = errors.New("invalid task name")
	ErrTaskAlreadyExists = errors.New("task already exists")
)

// Caller and global config errors.
var (
	ErrMissingCaller      = errors.New("caller identity is required")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
)

// kinds maps each sentinel to its stable external name.
var kinds = []struct {
	err  error
	kind string
}{
	{ErrTaskNotFound, "TaskNotFound"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrInvalidRewardDistribution, "InvalidRewardDistribution"},
	{ErrRewardDistributionNotSubmitted, "RewardDistributionNotSubmitted"},
	{ErrNotEligible, "NotEligible"},
	{ErrRewardAlreadyClaimed, "RewardAlreadyClaimed"},
	{ErrAllocationAlreadySubmitted, "AllocationAlreadySubmitted"},
	{ErrInvalidTaskName, "InvalidTaskName"},
	{ErrTaskAlreadyExists, "TaskAlreadyExists"},
	{ErrMissingCaller, "MissingCaller"},
	{ErrAlreadyInitialized, "AlreadyInitialized"},
	{ErrNotInitialized, "NotInitialized"},
	{ledger.ErrInsufficientFunds, "InsufficientFunds"},
	{ledger.ErrBalanceOverflow, "BalanceOverflow"},
	{ledger.ErrInvalidAccount, "InvalidAccount"},
	{context.Canceled, "Canceled"},
	{context.DeadlineExceeded, "DeadlineExceeded"},
}

// ErrorKind returns the stable name of err's kind, "" for nil and
// "Internal" for anything unrecognized.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
