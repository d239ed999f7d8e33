package transport

import (
	"github.com/foxseedlab/nlscribe/internal/config"
	"github.com/foxseedlab/nlscribe/internal/transport"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transport.Factory, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewFactory(Options{ConnectTimeout: c.ConnectTimeout}), nil
	})
}
