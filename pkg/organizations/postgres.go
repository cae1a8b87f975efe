// pkg/organizations/postgres.go
package organizations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgProvider implements Provider backed by PostgreSQL.
type pgProvider struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

func NewPostgresProvider(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Provider {
	return &pgProvider{dbPool: dbPool, log: log}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS organizations (
  id uuid PRIMARY KEY,
  name text NOT NULL,
  slug text UNIQUE,
  host text UNIQUE,
  subscription_tier text NOT NULL DEFAULT 'basic',
  api_quota_limit int NOT NULL DEFAULT 1000,
  is_active boolean NOT NULL DEFAULT true,
  oauth_issuer text,
  jwks_url text,
  accepted_audiences text[] DEFAULT '{}',
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS api_configurations (
  id uuid PRIMARY KEY,
  organization_id uuid NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
  api_type text NOT NULL,
  credentials_encrypted bytea,
  is_active boolean NOT NULL DEFAULT true,
  updated_at timestamptz NOT NULL DEFAULT NOW(),
  UNIQUE(organization_id, api_type)
);
CREATE TABLE IF NOT EXISTS usage_events (
  id BIGSERIAL PRIMARY KEY,
  organization_id uuid NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
  api_type text,
  method text,
  path text,
  actor_sub text,
  request_id text,
  status_code int,
  duration_ms int,
  started_at timestamptz NOT NULL DEFAULT NOW(),
  finished_at timestamptz
);
-- Backfill / ensure new columns exist (for upgrades)
ALTER TABLE organizations ADD COLUMN IF NOT EXISTS oauth_issuer text;
ALTER TABLE organizations ADD COLUMN IF NOT EXISTS jwks_url text;
ALTER TABLE organizations ADD COLUMN IF NOT EXISTS accepted_audiences text[] DEFAULT '{}';
ALTER TABLE api_configurations ADD COLUMN IF NOT EXISTS is_active boolean DEFAULT true;
ALTER TABLE api_configurations ADD COLUMN IF NOT EXISTS updated_at timestamptz DEFAULT NOW();
`)
	return err
}

const orgColumns = `id,name,COALESCE(slug,''),COALESCE(host,''),subscription_tier,api_quota_limit,is_active,COALESCE(oauth_issuer,''),COALESCE(jwks_url,''),accepted_audiences`

func scanOrg(row pgx.Row) (Organization, error) {
	var o Organization
	var accepted []string
	if err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Host, &o.SubscriptionTier, &o.APIQuotaLimit, &o.Active, &o.OAuthIssuer, &o.JWKSURL, &accepted); err != nil {
		return Organization{}, ErrNotFound
	}
	o.AcceptedAudiences = accepted
	return o, nil
}

func (p *pgProvider) ResolveByHost(ctx context.Context, host string) (Organization, error) {
	return scanOrg(p.dbPool.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE host=$1`, host))
}

func (p *pgProvider) ResolveByID(ctx context.Context, id string) (Organization, error) {
	return scanOrg(p.dbPool.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id=$1`, id))
}

func (p *pgProvider) ActiveConfiguration(ctx context.Context, orgID, apiType string) (APIConfiguration, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT id,organization_id,api_type,credentials_encrypted,is_active,updated_at
	 FROM api_configurations WHERE organization_id=$1 AND api_type=$2 AND is_active=true`, orgID, apiType)
	var c APIConfiguration
	if err := row.Scan(&c.ID, &c.OrganizationID, &c.APIType, &c.Credentials, &c.Active, &c.UpdatedAt); err != nil {
		return APIConfiguration{}, ErrConfigurationNotFound
	}
	return c, nil
}

func (p *pgProvider) ListConfigurations(ctx context.Context, orgID string) ([]APIConfiguration, error) {
	rows, err := p.dbPool.Query(ctx, `SELECT id,organization_id,api_type,is_active,updated_at
	 FROM api_configurations WHERE organization_id=$1 ORDER BY api_type`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []APIConfiguration
	for rows.Next() {
		var c APIConfiguration
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.APIType, &c.Active, &c.UpdatedAt); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *pgProvider) UpsertConfiguration(ctx context.Context, cfg APIConfiguration) error {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := p.dbPool.Exec(ctx, `INSERT INTO api_configurations(id,organization_id,api_type,credentials_encrypted,is_active,updated_at)
	  VALUES ($1,$2,$3,$4,true,NOW())
	  ON CONFLICT (organization_id,api_type) DO UPDATE SET credentials_encrypted=EXCLUDED.credentials_encrypted,is_active=true,updated_at=NOW()`,
		id, cfg.OrganizationID, cfg.APIType, cfg.Credentials)
	return err
}

func (p *pgProvider) DeactivateConfiguration(ctx context.Context, orgID, apiType string) error {
	ct, err := p.dbPool.Exec(ctx, `UPDATE api_configurations SET is_active=false,updated_at=NOW()
	 WHERE organization_id=$1 AND api_type=$2 AND is_active=true`, orgID, apiType)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrConfigurationNotFound
	}
	return nil
}

func (p *pgProvider) RecordUsage(ctx context.Context, ev UsageEvent) {
	if ev.StartedAt.IsZero() {
		ev.StartedAt = time.Now().UTC()
	}
	if ev.FinishedAt.IsZero() {
		ev.FinishedAt = time.Now().UTC()
	}
	_, err := p.dbPool.Exec(ctx, `
		INSERT INTO usage_events(organization_id, api_type, method, path, actor_sub, request_id, status_code, duration_ms, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, ev.OrganizationID, ev.APIType, ev.Method, ev.Path, ev.ActorSub, ev.RequestID, ev.StatusCode, ev.DurationMS, ev.StartedAt, ev.FinishedAt)
	if err != nil {
		p.log.Warnw("usage event insert", "err", err)
	}
}
