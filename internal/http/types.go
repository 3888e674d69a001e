package http

import (
	"time"

	"github.com/fyrsmithlabs/escrowd/internal/task"
	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// CreateTaskRequest is the body of POST /api/v1/tasks.
type CreateTaskRequest struct {
	Name         string `json:"name"`
	LockedAmount uint64 `json:"locked_amount"`
}

// CreateTaskResponse is returned with 201 on task creation.
type CreateTaskResponse struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Creator      auth.Identity `json:"creator"`
	Vault        auth.Identity `json:"vault"`
	LockedAmount uint64        `json:"locked_amount"`
}

// SubmitAllocationRequest is the body of POST /api/v1/tasks/:name/allocation.
type SubmitAllocationRequest struct {
	Recipients []string `json:"recipients"`
	Amounts    []uint64 `json:"amounts"`
}

// TaskResponse describes a task with its live vault balance.
type TaskResponse struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Stage               task.Stage      `json:"stage"`
	Creator             auth.Identity   `json:"creator"`
	Vault               auth.Identity   `json:"vault"`
	LockedAmount        uint64          `json:"locked_amount"`
	AllocationSubmitted bool            `json:"allocation_submitted"`
	Recipients          []auth.Identity `json:"recipients"`
	Amounts             []uint64        `json:"amounts"`
	Claimed             []bool          `json:"claimed"`
	Outstanding         uint64          `json:"outstanding"`
	VaultBalance        *uint64         `json:"vault_balance,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	SubmittedAt         *time.Time      `json:"submitted_at,omitempty"`
}

// ListTasksResponse is the body of GET /api/v1/tasks.
type ListTasksResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// BalanceResponse is the body of GET /api/v1/accounts/:id/balance.
type BalanceResponse struct {
	Identity auth.Identity `json:"identity"`
	Balance  uint64        `json:"balance"`
}

func newTaskResponse(t *task.Task) TaskResponse {
	resp := TaskResponse{
		ID:                  t.ID.String(),
		Name:                t.Name,
		Stage:               t.Stage(),
		Creator:             t.Creator,
		Vault:               t.Vault,
		LockedAmount:        t.LockedAmount,
		AllocationSubmitted: t.AllocationSubmitted,
		Recipients:          t.Recipients,
		Amounts:             t.Amounts,
		Claimed:             t.Claimed,
		Outstanding:         t.Outstanding(),
		CreatedAt:           t.CreatedAt,
		SubmittedAt:         t.SubmittedAt,
	}
	if resp.Recipients == nil {
		resp.Recipients = []auth.Identity{}
		resp.Amounts = []uint64{}
		resp.Claimed = []bool{}
	}
	return resp
}
