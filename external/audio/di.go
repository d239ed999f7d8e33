package audio

import (
	"github.com/foxseedlab/nlscribe/internal/audio"
	"github.com/foxseedlab/nlscribe/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (audio.Opener, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return func(input string) (audio.Source, error) {
			return Open(input, cfg.AudioSampleRate)
		}, nil
	})
}
