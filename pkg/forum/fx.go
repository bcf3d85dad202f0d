package forum

import (
	"go.uber.org/fx"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
)

// Module provides the forum reader for fx dependency injection.
var Module = fx.Module("forum",
	fx.Provide(
		fx.Annotate(
			NewReader,
			fx.As(new(Reader)),
		),
	),
)

// NewReader creates the HTTP forum reader from configuration.
func NewReader(log *logger.Logger, cfg *config.Config) *Client {
	return NewClient(log, cfg.Forum)
}
