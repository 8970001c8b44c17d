package reconcile

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/angelmondragon/holopos/pkg/enums"
	"github.com/angelmondragon/holopos/pkg/logger"
)

const (
	defaultInterval    = time.Minute
	defaultBackoffBase = 2 * time.Second
	defaultBackoffMax  = 2 * time.Minute
	jitterWindow       = 250 * time.Millisecond
)

type drainer interface {
	Reconcile(ctx context.Context) (Result, error)
}

type monitor interface {
	IsOnline() bool
	Subscribe() (<-chan enums.ConnectivityEvent, func())
}

type RunnerParams struct {
	Reconciler  drainer
	Monitor     monitor
	Logger      *logger.Logger
	Interval    time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Runner decides when to drain: when the till comes back online, on every
// interval while online, on Trigger, and on a backoff schedule after a
// drain was cut short.
type Runner struct {
	reconciler  drainer
	monitor     monitor
	logg        *logger.Logger
	interval    time.Duration
	backoffBase time.Duration
	backoffMax  time.Duration
	trigger     chan struct{}
	jitter      *rand.Rand
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	if params.Monitor == nil {
		return nil, errors.New("connectivity monitor is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Interval <= 0 {
		params.Interval = defaultInterval
	}
	if params.BackoffBase <= 0 {
		params.BackoffBase = defaultBackoffBase
	}
	if params.BackoffMax < params.BackoffBase {
		params.BackoffMax = defaultBackoffMax
	}
	return &Runner{
		reconciler:  params.Reconciler,
		monitor:     params.Monitor,
		logg:        params.Logger,
		interval:    params.Interval,
		backoffBase: params.BackoffBase,
		backoffMax:  params.BackoffMax,
		trigger:     make(chan struct{}, 1),
		jitter:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Trigger asks for a drain without waiting for it. Triggers that arrive
// before the runner gets to them collapse into one.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Runner) Run(ctx context.Context) error {
	events, unsubscribe := r.monitor.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var (
		backoff time.Duration
		retry   *time.Timer
	)
	retryC := func() <-chan time.Time {
		if retry == nil {
			return nil
		}
		return retry.C
	}
	drain := func(reason string) {
		if !r.monitor.IsOnline() {
			r.logg.Debug(r.logg.WithField(ctx, "reason", reason), "skipping drain while offline")
			return
		}
		if retry != nil {
			retry.Stop()
			retry = nil
		}
		result, err := r.reconciler.Reconcile(r.logg.WithField(ctx, "reason", reason))
		if err != nil {
			r.logg.Error(ctx, "offline drain failed", err)
		} else if failures := result.Err(); failures != nil {
			r.logg.Warn(r.logg.WithField(ctx, "error", failures.Error()), "offline drain left sales queued")
		}
		if err == nil && !result.Aborted {
			backoff = 0
			return
		}
		if ctx.Err() != nil {
			return
		}
		backoff = nextBackoff(backoff, r.backoffBase, r.backoffMax)
		retry = time.NewTimer(r.withJitter(backoff))
	}
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	drain("startup")
	for {
		select {
		case <-ctx.Done():
			r.logg.Info(ctx, "sync runner context canceled")
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event == enums.ConnectivityWentOnline {
				backoff = 0
				drain("went_online")
			}
		case <-ticker.C:
			drain("interval")
		case <-r.trigger:
			drain("manual")
		case <-retryC():
			retry = nil
			drain("retry")
		}
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		return base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func (r *Runner) withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(r.jitter.Int63n(int64(jitterWindow)))
}
