// pkg/organizations/memory.go
package organizations

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MemoryProvider struct {
	log *zap.SugaredLogger

	mu     sync.RWMutex
	byID   map[string]Organization
	byHost map[string]Organization
	cfgs   map[string]APIConfiguration // key: orgID+":"+apiType
	usage  []UsageEvent
}

// NewMemoryProvider returns an empty in-memory provider; used by tests and as
// the dev fallback when no database is configured.
func NewMemoryProvider(log *zap.SugaredLogger) *MemoryProvider {
	return &MemoryProvider{
		log:    log,
		byID:   map[string]Organization{},
		byHost: map[string]Organization{},
		cfgs:   map[string]APIConfiguration{},
	}
}

// NewMemoryProviderFromEnv seeds organizations from ORG_SEED_JSON:
// [{"id":"...","name":"...","slug":"...","host":"..."}]
func NewMemoryProviderFromEnv(log *zap.SugaredLogger) Provider {
	p := NewMemoryProvider(log)
	seed := os.Getenv("ORG_SEED_JSON")
	if seed != "" {
		var entries []struct {
			ID, Name, Slug, Host string
		}
		_ = json.Unmarshal([]byte(seed), &entries)
		for _, e := range entries {
			p.Add(Organization{ID: e.ID, Name: e.Name, Slug: e.Slug, Host: e.Host, SubscriptionTier: "basic", APIQuotaLimit: 1000, Active: true})
		}
	} else {
		// sensible localhost default for local bring-up
		dev := Organization{
			ID: "00000000-0000-0000-0000-000000000001", Name: "Dev", Slug: "dev",
			SubscriptionTier: "basic", APIQuotaLimit: 1000, Active: true,
			OAuthIssuer: os.Getenv("OIDC_ISSUER"), JWKSURL: os.Getenv("JWKS_URL"),
		}
		for _, h := range []string{"localhost", "localhost:8080", "127.0.0.1", "127.0.0.1:8080", "host.docker.internal"} {
			dd := dev
			dd.Host = h
			p.Add(dd)
		}
	}
	return p
}

// Add registers an organization (test/seed helper).
func (m *MemoryProvider) Add(o Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[o.ID] = o
	if o.Host != "" {
		m.byHost[o.Host] = o
	}
}

func (m *MemoryProvider) ResolveByHost(ctx context.Context, host string) (Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.byHost[host]; ok {
		return o, nil
	}
	return Organization{}, ErrNotFound
}

func (m *MemoryProvider) ResolveByID(ctx context.Context, id string) (Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.byID[id]; ok {
		return o, nil
	}
	return Organization{}, ErrNotFound
}

func (m *MemoryProvider) ActiveConfiguration(ctx context.Context, orgID, apiType string) (APIConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.cfgs[orgID+":"+apiType]; ok && c.Active {
		return c, nil
	}
	return APIConfiguration{}, ErrConfigurationNotFound
}

func (m *MemoryProvider) ListConfigurations(ctx context.Context, orgID string) ([]APIConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []APIConfiguration
	for _, c := range m.cfgs {
		if c.OrganizationID == orgID {
			c.Credentials = nil // metadata only
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryProvider) UpsertConfiguration(ctx context.Context, cfg APIConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.Active = true
	cfg.UpdatedAt = time.Now().UTC()
	m.cfgs[cfg.OrganizationID+":"+cfg.APIType] = cfg
	return nil
}

func (m *MemoryProvider) DeactivateConfiguration(ctx context.Context, orgID, apiType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cfgs[orgID+":"+apiType]
	if !ok || !c.Active {
		return ErrConfigurationNotFound
	}
	c.Active = false
	c.UpdatedAt = time.Now().UTC()
	m.cfgs[orgID+":"+apiType] = c
	return nil
}

func (m *MemoryProvider) RecordUsage(ctx context.Context, ev UsageEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, ev)
}
