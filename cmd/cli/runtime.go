package main

import (
	"context"
	"fmt"

	"github.com/himanishpuri/AnchorSync/internal/service"
	"github.com/himanishpuri/AnchorSync/pkg/anchorsync"
	"golang.org/x/sync/errgroup"
)

// withClient runs fn against a fresh client while the dispatcher loop runs
// alongside it. The session is stopped and all resources released on return.
func withClient(ctx context.Context, obs *observer, fn func(ctx context.Context, client *anchorsync.Client) error) error {
	store, err := anchorsync.NewSQLiteStorage(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open anchor store: %w", err)
	}
	defer store.Close()

	svc := service.New(store,
		service.WithProgressStep(cfg.Simulator.ProgressStep),
		service.WithLocateLatency(cfg.Simulator.LocateLatency),
		service.WithLogger(log),
	)
	defer svc.Close()

	opts := []anchorsync.Option{
		anchorsync.WithLogger(log),
		anchorsync.WithPollInterval(cfg.Readiness.PollInterval),
		anchorsync.WithMaxWait(cfg.Readiness.MaxWait),
		anchorsync.WithExpiration(cfg.Anchor.Expiration),
		anchorsync.WithSettleDelay(cfg.Session.SettleDelay),
	}
	if obs != nil {
		opts = append(opts, anchorsync.WithObserver(obs), anchorsync.WithProgressHandler(obs.progress))
	}

	client, err := anchorsync.NewClient(svc, anchorsync.NopRenderer{}, opts...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	if obs != nil {
		client.Locator().OnPlaced(obs.placed)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Run(gctx)
	})
	g.Go(func() error {
		defer client.Close()
		return fn(gctx, client)
	})
	return g.Wait()
}
