package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/affiliate-ledger/pkg/config"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         pinger
	Redis      pinger
	PubSub     pinger
	Qualifying consumer
}

// Service hosts the qualifying-event consumer that feeds the commission ledger.
type Service struct {
	cfg        *config.Config
	logg       *logger.Logger
	db         pinger
	redis      pinger
	pubsub     pinger
	qualifying consumer
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Redis == nil:
		return nil, errors.New("redis client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Qualifying == nil:
		return nil, errors.New("qualifying consumer is required")
	}
	return &Service{
		cfg:        params.Config,
		logg:       params.Logger,
		db:         params.DB,
		redis:      params.Redis,
		pubsub:     params.PubSub,
		qualifying: params.Qualifying,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		p    pinger
	}{
		{"database", s.db},
		{"redis", s.redis},
		{"pubsub", s.pubsub},
	} {
		if err := pingDependency(ctx, s.logg, dep.name, dep.p.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run blocks until the context is canceled or the consumer exits.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.qualifying.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logg.Info(ctx, "worker context canceled")
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "qualifying consumer stopped unexpectedly", err)
			return err
		}
		return err
	}
}
