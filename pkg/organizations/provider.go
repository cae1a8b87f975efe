package organizations

import (
	"context"
	"errors"
)

var (
	ErrNotFound              = errors.New("organization not found")
	ErrConfigurationNotFound = errors.New("api configuration not found")
)

type Provider interface {
	// Resolve organization from incoming host (or header).
	ResolveByHost(ctx context.Context, host string) (Organization, error)
	ResolveByID(ctx context.Context, id string) (Organization, error)

	// ActiveConfiguration returns the single active configuration for the
	// organization / API type pair, or ErrConfigurationNotFound.
	ActiveConfiguration(ctx context.Context, orgID, apiType string) (APIConfiguration, error)

	// ListConfigurations returns configuration metadata for the organization.
	// Callers must treat Credentials as opaque and never expose it.
	ListConfigurations(ctx context.Context, orgID string) ([]APIConfiguration, error)

	// UpsertConfiguration replaces the active configuration for the pair.
	UpsertConfiguration(ctx context.Context, cfg APIConfiguration) error

	// DeactivateConfiguration disables the pair without deleting the row.
	DeactivateConfiguration(ctx context.Context, orgID, apiType string) error

	// RecordUsage persists a usage event; best-effort, errors are logged by
	// implementations and never surfaced to request handlers.
	RecordUsage(ctx context.Context, ev UsageEvent)
}
