package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/escrowd/internal/events"
	"github.com/fyrsmithlabs/escrowd/internal/logging"
	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

// Operation names, used for spans and rejection metrics.
const (
	opCreate     = "create"
	opSubmit     = "submit_allocation"
	opClaim      = "claim"
	opInitialize = "initialize"
)

// Service runs the task lifecycle against a Ledger.
type Service struct {
	config   *Config
	registry *Registry
	ledger   Ledger
	emitter  events.Emitter
	logger   *zap.Logger

	tracer  trace.Tracer
	meter   metric.Meter
	metrics *Metrics
	now     func() time.Time

	mu     sync.RWMutex
	global *GlobalConfig
}

// Option configures a Service.
type Option func(*Service)

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithMeter overrides the global meter.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) { s.meter = m }
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRegistry supplies a pre-populated registry.
func WithRegistry(r *Registry) Option {
	return func(s *Service) { s.registry = r }
}

// NewService creates a task service. cfg, emitter and logger may be nil.
func NewService(cfg *Config, l Ledger, emitter events.Emitter, logger *zap.Logger, opts ...Option) (*Service, error) {
	if l == nil {
		return nil, errors.New("ledger is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		config:   cfg,
		registry: NewRegistry(),
		ledger:   l,
		emitter:  emitter,
		logger:   logger.Named("task"),
		tracer:   otel.Tracer(InstrumentationName),
		meter:    otel.Meter(InstrumentationName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	m, err := NewMetrics(s.meter)
	if err != nil {
		return nil, fmt.Errorf("task metrics: %w", err)
	}
	s.metrics = m

	return s, nil
}

// CreateTask locks req.LockedAmount from the caller into a new task vault.
// If the lock fails no record is left behind.
func (s *Service) CreateTask(ctx context.Context, req CreateRequest) (*Task, error) {
	ctx, span := s.start(ctx, opCreate, req.Name)
	defer span.End()
	span.SetAttributes(attribute.Int64("task.locked_amount", clampInt64(req.LockedAmount)))

	t, err := s.createTask(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, span, opCreate, err)
	}

	s.metrics.RecordCreated(ctx, t.LockedAmount)
	s.logger.Info("task created", append(logging.ContextFields(ctx),
		zap.String("task.id", t.ID.String()),
		zap.String("vault", t.Vault.String()),
		zap.Uint64("locked_amount", t.LockedAmount))...)

	s.emitter.Emit(ctx, events.TaskCreated{
		Creator:      t.Creator,
		Name:         t.Name,
		LockedAmount: t.LockedAmount,
	})
	return t, nil
}

func (s *Service) createTask(ctx context.Context, req CreateRequest) (*Task, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validateName(req.Name); err != nil {
		return nil, err
	}
	vault, err := VaultFor(req.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTaskName, err)
	}

	t := &Task{
		ID:           uuid.New(),
		Name:         req.Name,
		Creator:      caller,
		Vault:        vault,
		LockedAmount: req.LockedAmount,
		CreatedAt:    s.now().UTC(),
	}

	err = s.registry.Create(t, func(t *Task) error {
		if err := s.ledger.Lock(ctx, t.Creator, t.Vault, t.LockedAmount); err != nil {
			return fmt.Errorf("lock %d from %s: %w", t.LockedAmount, t.Creator, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// SubmitAllocation commits the one allocation of a task. Only the creator
// may submit, the amounts must sum to the locked amount exactly, and a task
// accepts exactly one allocation.
func (s *Service) SubmitAllocation(ctx context.Context, req SubmitRequest) error {
	ctx, span := s.start(ctx, opSubmit, req.TaskName)
	defer span.End()
	span.SetAttributes(attribute.Int("task.recipients", len(req.Recipients)))

	t, err := s.submitAllocation(ctx, req)
	if err != nil {
		return s.fail(ctx, span, opSubmit, err)
	}

	s.metrics.RecordAllocation(ctx, len(t.Recipients))
	s.logger.Info("allocation submitted", append(logging.ContextFields(ctx),
		zap.Int("recipients", len(t.Recipients)),
		zap.Uint64("locked_amount", t.LockedAmount))...)

	s.emitter.Emit(ctx, events.RewardDistributionSubmitted{
		TaskName:   t.Name,
		Recipients: t.Recipients,
		Amounts:    t.Amounts,
	})
	return nil
}

func (s *Service) submitAllocation(ctx context.Context, req SubmitRequest) (*Task, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	return s.registry.Update(req.TaskName, func(t *Task) error {
		if err := ValidateAllocation(t, caller, req.Recipients, req.Amounts, s.config.MaxRecipients); err != nil {
			return err
		}
		at := s.now().UTC()
		t.Recipients = append([]auth.Identity(nil), req.Recipients...)
		t.Amounts = append([]uint64(nil), req.Amounts...)
		t.Claimed = make([]bool, len(req.Recipients))
		t.AllocationSubmitted = true
		t.SubmittedAt = &at
		return nil
	})
}

// Claim pays the caller's next unclaimed slot out of the task vault. The
// claim flag and the ledger transfer commit together; a failed transfer
// leaves the slot unclaimed.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	ctx, span := s.start(ctx, opClaim, req.TaskName)
	defer span.End()

	res, err := s.claim(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, span, opClaim, err)
	}

	span.SetAttributes(
		attribute.Int("task.slot", res.Index),
		attribute.Int64("task.amount", clampInt64(res.Amount)),
	)
	s.metrics.RecordClaim(ctx, res.Amount)
	s.logger.Info("reward claimed", append(logging.ContextFields(ctx),
		zap.Int("slot", res.Index),
		zap.Uint64("amount", res.Amount))...)

	s.emitter.Emit(ctx, events.RewardClaimed{
		TaskName: res.TaskName,
		Claimer:  res.Claimer,
		Amount:   res.Amount,
	})
	return res, nil
}

func (s *Service) claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	var res *ClaimResult
	_, err = s.registry.Update(req.TaskName, func(t *Task) error {
		i, err := resolveClaim(t, caller)
		if err != nil {
			return err
		}
		t.Claimed[i] = true
		if err := s.ledger.Transfer(ctx, t.Vault, caller, t.Amounts[i]); err != nil {
			return fmt.Errorf("transfer slot %d: %w", i, err)
		}
		res = &ClaimResult{
			TaskName: t.Name,
			Claimer:  caller,
			Index:    i,
			Amount:   t.Amounts[i],
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Initialize records the caller as admin. It succeeds once.
func (s *Service) Initialize(ctx context.Context) (*GlobalConfig, error) {
	ctx, span := s.start(ctx, opInitialize, "")
	defer span.End()

	caller, err := s.caller(ctx)
	if err != nil {
		return nil, s.fail(ctx, span, opInitialize, err)
	}

	s.mu.Lock()
	if s.global != nil {
		s.mu.Unlock()
		return nil, s.fail(ctx, span, opInitialize, ErrAlreadyInitialized)
	}
	g := &GlobalConfig{Admin: caller, InitializedAt: s.now().UTC()}
	s.global = g
	s.mu.Unlock()

	s.logger.Info("global config initialized", logging.ContextFields(ctx)...)
	c := *g
	return &c, nil
}

// GlobalConfig returns the record written by Initialize.
func (s *Service) GlobalConfig(ctx context.Context) (*GlobalConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.global == nil {
		return nil, ErrNotInitialized
	}
	c := *s.global
	return &c, nil
}

// GetTask returns a snapshot of the named task.
func (s *Service) GetTask(ctx context.Context, name string) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.registry.Get(name)
}

// ListTasks returns snapshots of all tasks sorted by name.
func (s *Service) ListTasks(ctx context.Context) ([]*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.registry.List(), nil
}

// Config returns the limits in force.
func (s *Service) Config() Config {
	return *s.config
}

func (s *Service) start(ctx context.Context, op, name string) (context.Context, trace.Span) {
	ctx = logging.WithTaskName(ctx, name)
	attrs := []attribute.KeyValue{attribute.String("task.operation", op)}
	if name != "" {
		attrs = append(attrs, attribute.String("task.name", name))
	}
	if caller, ok := auth.CallerFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("task.caller", caller.String()))
	}
	return s.tracer.Start(ctx, "task."+op, trace.WithAttributes(attrs...))
}

// fail records err on span, metrics and logs, and returns it unchanged.
func (s *Service) fail(ctx context.Context, span trace.Span, op string, err error) error {
	kind := ErrorKind(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, kind)
	span.SetAttributes(attribute.String("task.error_kind", kind))
	s.metrics.RecordRejected(ctx, op, err)

	fields := append(logging.ContextFields(ctx),
		zap.String("operation", op),
		zap.String("reason", kind),
		zap.Error(err))
	if kind == "Internal" {
		s.logger.Error("task operation failed", fields...)
	} else {
		s.logger.Debug("task operation rejected", fields...)
	}
	return err
}

func (s *Service) caller(ctx context.Context) (auth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	caller, ok := auth.CallerFromContext(ctx)
	if !ok {
		return "", ErrMissingCaller
	}
	return caller, nil
}

func (s *Service) validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidTaskName)
	}
	if s.config.MaxNameLength > 0 && len(name) > s.config.MaxNameLength {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalidTaskName, len(name), s.config.MaxNameLength)
	}
	return nil
}
