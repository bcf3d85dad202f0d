package store

import (
	"context"
	"path/filepath"

	"go.uber.org/fx"

	"chatrelay/pkg/config"
	"chatrelay/pkg/forum"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/provider"
	"chatrelay/pkg/provider/slack"
)

// Module is the fx module for the store.
var Module = fx.Module("store",
	fx.Provide(ProvideStore),
	fx.Provide(func(s *Store) slack.ThreadStore { return s }),
)

// ProvideStore opens the store and wires maintenance into the fx
// lifecycle.
func ProvideStore(
	lc fx.Lifecycle,
	log *logger.Logger,
	cfg *config.Config,
	registry *provider.Registry,
	reader forum.Reader,
) (*Store, error) {
	s, err := Open(log, Config{
		Dir:      filepath.Join(cfg.Storage.DataDir, "store"),
		InMemory: cfg.Storage.InMemory,
	}, registry, reader)
	if err != nil {
		return nil, err
	}

	maintenance, err := NewMaintenance(s, cfg.Storage.GCSchedule)
	if err != nil {
		s.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			maintenance.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			maintenance.Stop()
			return s.Close()
		},
	})

	return s, nil
}
