package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

// Stage is the lifecycle position of a task.
type Stage string

const (
	StageCreated   Stage = "created"
	StageAllocated Stage = "allocated"
)

// vaultSeed namespaces vault identities derived from task names.
const vaultSeed = "task_vault"

// Task is one escrow-and-distribution record.
//
// Recipients, Amounts and Claimed are index-aligned and empty until the
// allocation is submitted.
type Task struct {
	ID                  uuid.UUID       `json:"id"`
	Name                string          `json:"name"`
	Creator             auth.Identity   `json:"creator"`
	Vault               auth.Identity   `json:"vault"`
	LockedAmount        uint64          `json:"locked_amount"`
	AllocationSubmitted bool            `json:"allocation_submitted"`
	Recipients          []auth.Identity `json:"recipients"`
	Amounts             []uint64        `json:"amounts"`
	Claimed             []bool          `json:"claimed"`
	CreatedAt           time.Time       `json:"created_at"`
	SubmittedAt         *time.Time      `json:"submitted_at,omitempty"`
}

// Stage derives the lifecycle stage.
func (t *Task) Stage() Stage {
	if t.AllocationSubmitted {
		return StageAllocated
	}
	return StageCreated
}

// ClaimedAmount sums the amounts of claimed slots.
func (t *Task) ClaimedAmount() uint64 {
	var total uint64
	for i, c := range t.Claimed {
		if c {
			total += t.Amounts[i]
		}
	}
	return total
}

// Outstanding is what the vault should still hold.
func (t *Task) Outstanding() uint64 {
	return t.LockedAmount - t.ClaimedAmount()
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Recipients = append([]auth.Identity(nil), t.Recipients...)
	c.Amounts = append([]uint64(nil), t.Amounts...)
	c.Claimed = append([]bool(nil), t.Claimed...)
	if t.SubmittedAt != nil {
		at := *t.SubmittedAt
		c.SubmittedAt = &at
	}
	return &c
}

// VaultFor derives the holding account for a task name.
func VaultFor(name string) (auth.Identity, error) {
	return auth.DeriveIdentity(vaultSeed, name)
}

// GlobalConfig is the singleton written by Initialize.
type GlobalConfig struct {
	Admin         auth.Identity `json:"admin"`
	InitializedAt time.Time     `json:"initialized_at"`
}

// CreateRequest locks LockedAmount from the caller under Name.
type CreateRequest struct {
	Name         string
	LockedAmount uint64
}

// SubmitRequest commits the allocation of a task.
type SubmitRequest struct {
	TaskName   string
	Recipients []auth.Identity
	Amounts    []uint64
}

// ClaimRequest redeems the caller's next unclaimed slot.
type ClaimRequest struct {
	TaskName string
}

// ClaimResult describes a paid slot.
type ClaimResult struct {
	TaskName string        `json:"task_name"`
	Claimer  auth.Identity `json:"claimer"`
	Index    int           `json:"index"`
	Amount   uint64        `json:"amount"`
}

// Config bounds task inputs.
type Config struct {
	// MaxNameLength is the longest accepted task name in bytes.
	MaxNameLength int
	// MaxRecipients caps allocation size.
	MaxRecipients int
}

// DefaultConfig returns the stock limits.
func DefaultConfig() *Config {
	return &Config{
		MaxNameLength: 50,
		MaxRecipients: 100,
	}
}
