package session

import (
	"github.com/foxseedlab/nlscribe/internal/config"
	"github.com/foxseedlab/nlscribe/internal/metrics"
	"github.com/foxseedlab/nlscribe/internal/notifier"
	"github.com/foxseedlab/nlscribe/internal/repository"
	"github.com/foxseedlab/nlscribe/internal/token"
	"github.com/foxseedlab/nlscribe/internal/transcriber"
	"github.com/foxseedlab/nlscribe/internal/transport"
	"github.com/foxseedlab/nlscribe/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (TranscriberFactory, error) {
		cfg := do.MustInvoke[*config.Config](i)
		issuer := do.MustInvoke[token.Issuer](i)
		newConn := do.MustInvoke[transport.Factory](i)
		opts := transcriber.OptionsFromConfig(cfg)
		return func() Transcriber {
			return transcriber.NewSession(opts, issuer, newConn)
		}, nil
	})
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		newTranscriber := do.MustInvoke[TranscriberFactory](i)
		wh := do.MustInvoke[webhook.Sender](i)
		n := do.MustInvoke[notifier.Notifier](i)
		rec := do.MustInvoke[metrics.Recorder](i)
		return NewManager(cfg, repo, newTranscriber, wh, n, rec), nil
	})
}
