// Package adminapi hosts the back-office surface where operators connect an
// organization to external APIs. It is the only place credentials enter the
// system; they are sealed on write and never returned by any endpoint.
package adminapi

import (
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"

	"fleetgate/internal/authbroker"
	"fleetgate/pkg/organizations"
	"fleetgate/pkg/secrets"
)

// Config holds admin-api specific configuration.
type Config struct {
	OIDCIssuer   string
	OIDCAudience string
	JWKSURL      string
}

// App is the admin-api application container.
// Handlers and middleware have methods on this type.
//
// Keep it lean: shared deps and config only.
// Request-scoped work should use context.
type App struct {
	log    *zap.SugaredLogger
	prov   organizations.Provider
	box    *secrets.Box
	store  *authbroker.Store
	signer *authbroker.AssertionSigner
	broker *authbroker.Broker
	client *http.Client

	adminJWKS   jwk.Set
	adminIssuer string
	adminAud    string
}

// New constructs App. The broker shares the same provider and box so a
// connection test exercises exactly the path the dashboard will use.
func New(log *zap.SugaredLogger, prov organizations.Provider, box *secrets.Box, broker *authbroker.Broker, cfg Config) *App {
	app := &App{
		log:         log,
		prov:        prov,
		box:         box,
		store:       authbroker.NewStore(prov, box),
		signer:      authbroker.NewAssertionSigner(),
		broker:      broker,
		client:      &http.Client{Timeout: 15 * time.Second},
		adminIssuer: cfg.OIDCIssuer,
		adminAud:    cfg.OIDCAudience,
	}
	if cfg.JWKSURL != "" {
		app.adminJWKS = mustJWKS(cfg.JWKSURL)
	}
	return app
}
