package main

import (
	"context"
	"net/http"
	"os"

	"fleetgate/internal/adminapi"
	"fleetgate/internal/authbroker"
	"fleetgate/pkg/config"
	"fleetgate/pkg/db"
	"fleetgate/pkg/logger"
	"fleetgate/pkg/organizations"
	"fleetgate/pkg/secrets"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer log.Sync()

	pool := db.MustConnect(cfg, log)

	var prov organizations.Provider
	if pool != nil {
		if err := organizations.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalw("schema", "err", err)
		}
		prov = organizations.NewPostgresProvider(pool, log)
	} else {
		prov = organizations.NewMemoryProviderFromEnv(log)
	}

	box := secrets.NewBox(cfg.EncryptionKey)
	broker := authbroker.NewBroker(authbroker.NewStore(prov, box), log)

	app := adminapi.New(log, prov, box, broker, adminapi.Config{
		OIDCIssuer:   os.Getenv("ADMIN_OIDC_ISSUER"),
		OIDCAudience: os.Getenv("ADMIN_OIDC_AUDIENCE"),
		JWKSURL:      os.Getenv("ADMIN_JWKS_URL"),
	})

	log.Infof("admin-api listening at %s", cfg.AdminAddr)
	if err := http.ListenAndServe(cfg.AdminAddr, app.Handler()); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
