package admin

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
)

// Module provides the admin server for fx dependency injection.
var Module = fx.Module("admin",
	fx.Provide(NewServer),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, s *Server, cfg *config.Config, log *logger.Logger) {
	if !cfg.Admin.Enabled {
		log.Info("Admin server disabled in config")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting admin server", zap.Int("port", s.port))
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.Stop(shutdownCtx)
		},
	})
}
