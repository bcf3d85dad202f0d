package logger

import (
	"context"

	"go.uber.org/fx"

	"chatrelay/pkg/config"
)

// Module provides logger for fx dependency injection.
var Module = fx.Module("logger",
	fx.Provide(ProvideLogger),
)

// ProvideLogger provides a logger instance built from the loaded configuration.
func ProvideLogger(cfg *config.Config, lc fx.Lifecycle) (*Logger, error) {
	logCfg := &Config{
		Level:       Level(cfg.Logging.Level),
		OutputPath:  cfg.Logging.File,
		MaxSize:     cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAge:      cfg.Logging.MaxAgeDays,
		Compress:    cfg.Logging.Compress,
		Development: cfg.Logging.Development,
	}
	if logCfg.MaxSize <= 0 {
		logCfg.MaxSize = 100
	}

	logger, err := New(logCfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// Sync can fail on stdout; nothing actionable.
			_ = logger.Sync()
			return nil
		},
	})

	return logger, nil
}
