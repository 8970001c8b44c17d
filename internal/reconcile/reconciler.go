package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/holopos/internal/offline"
	"github.com/angelmondragon/holopos/internal/sales"
	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/angelmondragon/holopos/pkg/logger"
	"github.com/angelmondragon/holopos/pkg/metrics"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
)

const (
	outcomeEmpty     = "empty"
	outcomeCompleted = "completed"
	outcomePartial   = "partial"
	outcomeAborted   = "aborted"
)

type submitter interface {
	SubmitSale(ctx context.Context, payload sales.Payload, idempotencyKey string) (*sales.Confirmation, error)
}

type pendingQueue interface {
	List(ctx context.Context) ([]offline.PendingSale, error)
	Remove(ctx context.Context, localID string) error
}

type Params struct {
	Queue         pendingQueue
	Submitter     submitter
	Logger        *logger.Logger
	Metrics       *metrics.SyncMetrics
	Lock          Lock
	SubmitTimeout time.Duration
}

// Failure is one sale that stayed queued during a drain.
type Failure struct {
	LocalID string
	Code    pkgerrors.Code
	Err     error
}

// Result summarises one drain.
type Result struct {
	Synced    int
	Failed    int
	Remaining int
	Coalesced bool
	Aborted   bool
	Failures  []Failure
}

// Err folds the per-sale failures into one error, nil when every attempted
// sale went through.
func (r Result) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, fmt.Errorf("%s: %w", f.LocalID, f.Err))
	}
	return err
}

// Reconciler drains the offline queue against the backend. At most one
// drain runs at a time; overlapping triggers are coalesced.
type Reconciler struct {
	queue     pendingQueue
	submitter submitter
	logg      *logger.Logger
	metrics   *metrics.SyncMetrics
	lock      Lock
	timeout   time.Duration
	draining  *semaphore.Weighted
}

func NewReconciler(params Params) (*Reconciler, error) {
	if params.Queue == nil {
		return nil, errors.New("offline queue is required")
	}
	if params.Submitter == nil {
		return nil, errors.New("sale submitter is required")
	}
	if params.SubmitTimeout <= 0 {
		return nil, errors.New("submit timeout must be positive")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Reconciler{
		queue:     params.Queue,
		submitter: params.Submitter,
		logg:      params.Logger,
		metrics:   params.Metrics,
		lock:      params.Lock,
		timeout:   params.SubmitTimeout,
		draining:  semaphore.NewWeighted(1),
	}, nil
}

// Reconcile submits every queued sale oldest first. Accepted sales are removed
// one by one as soon as the backend acknowledges them. A rejected sale stays
// queued and the drain moves on; a network failure ends the drain early.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	if !r.draining.TryAcquire(1) {
		r.metrics.IncCoalesced()
		r.logg.Debug(ctx, "offline drain already running, trigger coalesced")
		return Result{Coalesced: true}, nil
	}
	defer r.draining.Release(1)

	if r.lock != nil {
		ok, err := r.lock.Acquire(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("acquire drain lock: %w", err)
		}
		if !ok {
			r.metrics.IncCoalesced()
			r.logg.Debug(ctx, "offline drain held by another process")
			return Result{Coalesced: true}, nil
		}
		defer func() {
			if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
				r.logg.Error(ctx, "failed to release drain lock", err)
			}
		}()
	}

	started := time.Now()
	pending, err := r.queue.List(ctx)
	if err != nil {
		return Result{}, err
	}

	var result Result
	defer func() {
		r.finish(ctx, result, len(pending), time.Since(started))
	}()

	for _, sale := range pending {
		if ctx.Err() != nil {
			result.Aborted = true
			break
		}

		submitErr := r.submit(ctx, sale)
		if submitErr == nil {
			result.Synced++
			if err := r.queue.Remove(ctx, sale.LocalID); err != nil {
				// the backend has it; the idempotency key covers the resubmit
				result.Remaining = len(pending) - result.Synced
				return result, fmt.Errorf("remove synced sale %s: %w", sale.LocalID, err)
			}
			continue
		}

		failure := Failure{LocalID: sale.LocalID, Code: codeOf(submitErr), Err: submitErr}
		result.Failures = append(result.Failures, failure)
		if stopsDrain(ctx, submitErr) {
			result.Aborted = true
			break
		}
		result.Failed++
		r.logg.Warn(r.logg.WithFields(r.logg.WithSaleID(ctx, sale.LocalID), map[string]any{
			"code":  string(failure.Code),
			"error": submitErr.Error(),
		}), "offline sale stays queued")
	}

	result.Remaining = len(pending) - result.Synced
	return result, nil
}

func (r *Reconciler) submit(ctx context.Context, sale offline.PendingSale) error {
	submitCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.submitter.SubmitSale(submitCtx, sale.Payload, sale.LocalID)
	return err
}

func (r *Reconciler) finish(ctx context.Context, result Result, attempted int, elapsed time.Duration) {
	outcome := outcomeCompleted
	switch {
	case result.Aborted:
		outcome = outcomeAborted
	case result.Failed > 0:
		outcome = outcomePartial
	case attempted == 0:
		outcome = outcomeEmpty
	}

	r.metrics.ObserveDrain(outcome, elapsed)
	r.metrics.AddSynced(result.Synced)
	for _, f := range result.Failures {
		r.metrics.IncFailed(string(f.Code))
	}
	r.metrics.SetPending(result.Remaining)

	if attempted == 0 {
		return
	}
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"outcome":     outcome,
		"synced":      result.Synced,
		"failed":      result.Failed,
		"remaining":   result.Remaining,
		"duration_ms": elapsed.Milliseconds(),
	}), fmt.Sprintf("synced %d sales", result.Synced))
}

// stopsDrain reports whether the failure means the backend is unreachable,
// in which case the remaining sales would fail the same way.
func stopsDrain(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return codeOf(err) == pkgerrors.CodeNetwork
}

func codeOf(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.CodeNetwork
	}
	return pkgerrors.CodeInternal
}
