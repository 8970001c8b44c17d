package main

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/holopos/pkg/logger"
)

type loop interface {
	Run(ctx context.Context) error
}

type pendingCounter interface {
	Count(ctx context.Context) (int, error)
}

type ServiceParams struct {
	Logger  *logger.Logger
	Monitor loop
	Runner  loop
	Queue   pendingCounter
}

// Service keeps the offline queue draining without a till attached, for
// example overnight when the terminal process is closed.
type Service struct {
	logg    *logger.Logger
	monitor loop
	runner  loop
	queue   pendingCounter
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Monitor == nil {
		return nil, errors.New("connectivity monitor is required")
	}
	if params.Runner == nil {
		return nil, errors.New("sync runner is required")
	}
	if params.Queue == nil {
		return nil, errors.New("offline queue is required")
	}
	return &Service{
		logg:    params.Logger,
		monitor: params.Monitor,
		runner:  params.Runner,
		queue:   params.Queue,
	}, nil
}

// Run blocks until ctx is canceled or one of the loops fails.
func (s *Service) Run(ctx context.Context) error {
	pending, err := s.queue.Count(ctx)
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "pending", pending), "sync worker ready")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.monitor.Run(groupCtx) })
	group.Go(func() error { return s.runner.Run(groupCtx) })

	err = group.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
