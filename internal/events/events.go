// Package events publishes task lifecycle notifications to observers.
//
// Emission is fire-and-forget: emitters never report failure to the caller
// and nothing in escrowd reads events back. Delivery is at-least-once at best.
package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/escrowd/internal/logging"
	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

// Event type identifiers. They double as the NATS subject suffix.
const (
	TypeTaskCreated                 = "created"
	TypeRewardDistributionSubmitted = "distribution_submitted"
	TypeRewardClaimed               = "reward_claimed"
)

// Event is a task lifecycle notification.
type Event interface {
	// Type returns the event type identifier.
	Type() string
	// Task returns the name of the task the event relates to.
	Task() string
}

// Emitter emits events to observers.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// TaskCreated is emitted once funds are locked and the task record exists.
type TaskCreated struct {
	Creator      auth.Identity `json:"creator"`
	Name         string        `json:"name"`
	LockedAmount uint64        `json:"locked_amount"`
}

func (e TaskCreated) Type() string { return TypeTaskCreated }
func (e TaskCreated) Task() string { return e.Name }

// RewardDistributionSubmitted is emitted when an allocation is committed.
type RewardDistributionSubmitted struct {
	TaskName   string          `json:"task_name"`
	Recipients []auth.Identity `json:"recipients"`
	Amounts    []uint64        `json:"amounts"`
}

func (e RewardDistributionSubmitted) Type() string { return TypeRewardDistributionSubmitted }
func (e RewardDistributionSubmitted) Task() string { return e.TaskName }

// RewardClaimed is emitted after a claim transfer is confirmed.
type RewardClaimed struct {
	TaskName string        `json:"task_name"`
	Claimer  auth.Identity `json:"claimer"`
	Amount   uint64        `json:"amount"`
}

func (e RewardClaimed) Type() string { return TypeRewardClaimed }
func (e RewardClaimed) Task() string { return e.TaskName }

// Nop discards every event.
type Nop struct{}

// Emit does nothing.
func (Nop) Emit(context.Context, Event) {}

// Multi fans an event out to several emitters in order.
type Multi []Emitter

// Emit forwards event to every non-nil emitter.
func (m Multi) Emit(ctx context.Context, event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, event)
		}
	}
}

// Log writes every event to Logger at debug level.
type Log struct {
	Logger *zap.Logger
}

// Emit logs event with the request's correlation fields.
func (l Log) Emit(ctx context.Context, event Event) {
	if l.Logger == nil {
		return
	}
	l.Logger.Debug("task event", append(logging.ContextFields(ctx),
		zap.String("event.type", event.Type()),
		zap.String("event.task", event.Task()))...)
}
