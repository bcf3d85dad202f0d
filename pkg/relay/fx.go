package relay

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/provider"
	"chatrelay/pkg/provider/discord"
	"chatrelay/pkg/provider/mattermost"
	"chatrelay/pkg/provider/slack"
	"chatrelay/pkg/provider/teams"
	"chatrelay/pkg/provider/telegram"
	"chatrelay/pkg/provider/zulip"
)

// Module is the fx module for the relay engine.
var Module = fx.Module("relay",
	fx.Provide(NewDispatcher),
	fx.Invoke(RegisterSinks),
)

// RegisterSinks registers all enabled provider sinks with the registry.
// A sink whose constructor fails is skipped so one bad token does not
// take the process down.
func RegisterSinks(
	registry *provider.Registry,
	log *logger.Logger,
	cfg *config.Config,
	threads slack.ThreadStore,
) error {
	if cfg.Providers.Slack.Enabled {
		if err := registry.Register(slack.New(log, cfg.Providers.Slack, threads)); err != nil {
			return err
		}
	}

	if cfg.Providers.Discord.Enabled {
		sink, err := discord.New(log, cfg.Providers.Discord)
		if err != nil {
			log.Warn("Failed to create Discord sink, skipping", zap.Error(err))
		} else if err := registry.Register(sink); err != nil {
			return err
		}
	}

	if cfg.Providers.Telegram.Enabled {
		sink, err := telegram.New(log, cfg.Providers.Telegram)
		if err != nil {
			log.Warn("Failed to create Telegram sink, skipping", zap.Error(err))
		} else if err := registry.Register(sink); err != nil {
			return err
		}
	}

	if cfg.Providers.Teams.Enabled {
		if err := registry.Register(teams.New(log, cfg.Providers.Teams)); err != nil {
			return err
		}
	}

	if cfg.Providers.Mattermost.Enabled {
		if err := registry.Register(mattermost.New(log, cfg.Providers.Mattermost)); err != nil {
			return err
		}
	}

	if cfg.Providers.Zulip.Enabled {
		if err := registry.Register(zulip.New(log, cfg.Providers.Zulip)); err != nil {
			return err
		}
	}

	log.Info("Registered provider sinks", zap.Strings("providers", registry.Names()))
	return nil
}
