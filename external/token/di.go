package token

import (
	"log/slog"

	"github.com/foxseedlab/nlscribe/internal/config"
	"github.com/foxseedlab/nlscribe/internal/token"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (token.Issuer, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewIssuer(c), nil
	})
}

// NewIssuer prefers the backend token service when one is configured.
func NewIssuer(c *config.Config) token.Issuer {
	if c.TokenServiceURL != "" {
		slog.Info("using backend token service", "url", c.TokenServiceURL)
		return NewBackendIssuer(c.TokenServiceURL, nil)
	}
	slog.Info("using control plane token issuer", "host", c.ControlPlaneHost, "region", c.Region)
	return NewControlPlaneIssuer(token.NewSigner(c.ControlPlaneHost), token.Credentials{
		AccessKeyID:     c.AccessKeyID,
		AccessKeySecret: c.AccessKeySecret,
		RegionID:        c.Region,
	}, nil)
}
