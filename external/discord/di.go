package discord

import (
	"log/slog"

	"github.com/foxseedlab/nlscribe/internal/config"
	"github.com/foxseedlab/nlscribe/internal/notifier"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (notifier.Notifier, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.DiscordToken == "" || c.DiscordChannelID == "" {
			slog.Info("discord notifier disabled")
			return notifier.Nop{}, nil
		}
		return NewClient(c.DiscordToken, c.DiscordChannelID)
	})
}
