package metrics

import (
	"github.com/foxseedlab/nlscribe/internal/config"
	"github.com/foxseedlab/nlscribe/internal/metrics"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Prometheus, error) {
		return NewPrometheus(), nil
	})
	do.Provide(injector, func(i do.Injector) (metrics.Recorder, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.MetricsAddr == "" {
			return metrics.Nop{}, nil
		}
		return do.MustInvoke[*Prometheus](i), nil
	})
}
