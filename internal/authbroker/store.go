// Package authbroker mints and caches short-lived bearer tokens for external
// APIs using the OAuth2 client-credentials + JWT-bearer assertion flow
// (RFC 7523), isolated per organization.
package authbroker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fleetgate/pkg/organizations"
	"fleetgate/pkg/secrets"
)

// TenantCredential is one organization's registered client for an external
// API, decrypted on demand. The private key must never be logged or returned
// in any API response.
type TenantCredential struct {
	OrganizationID string
	APIType        string

	ClientID      string   `json:"client_id"`
	KeyID         string   `json:"key_id"`
	PrivateKeyPEM string   `json:"private_key"`
	STSURL        string   `json:"sts_url"`
	APIBaseURL    string   `json:"api_base_url"`
	Scopes        []string `json:"scopes,omitempty"`
}

// TokenEndpoint is the STS endpoint the assertion is exchanged at; it is also
// the assertion's audience.
func (c TenantCredential) TokenEndpoint() string {
	return strings.TrimRight(c.STSURL, "/") + "/oauth2/token"
}

// Store reads and decrypts per-organization credentials. Read-only; the
// decrypted result is never cached.
type Store struct {
	prov organizations.Provider
	box  *secrets.Box
}

func NewStore(prov organizations.Provider, box *secrets.Box) *Store {
	return &Store{prov: prov, box: box}
}

// Credentials returns the active credential for the organization / API type
// pair. Fails with ErrCredentialNotFound when no active configuration exists
// or required fields are missing, and with *DecryptionError when the blob
// cannot be opened with the master key.
func (s *Store) Credentials(ctx context.Context, orgID, apiType string) (TenantCredential, error) {
	cfg, err := s.prov.ActiveConfiguration(ctx, orgID, apiType)
	if err != nil {
		if errors.Is(err, organizations.ErrConfigurationNotFound) {
			return TenantCredential{}, fmt.Errorf("%w: org %s api %s", ErrCredentialNotFound, orgID, apiType)
		}
		return TenantCredential{}, err
	}
	var cred TenantCredential
	if err := s.box.OpenJSON(cfg.Credentials, &cred); err != nil {
		return TenantCredential{}, &DecryptionError{Err: err}
	}
	cred.OrganizationID = orgID
	cred.APIType = apiType
	// A configuration without key material is as unusable as a missing one;
	// no fallback key is ever generated.
	if cred.ClientID == "" || cred.PrivateKeyPEM == "" || cred.STSURL == "" || cred.APIBaseURL == "" {
		return TenantCredential{}, fmt.Errorf("%w: incomplete configuration for org %s api %s", ErrCredentialNotFound, orgID, apiType)
	}
	return cred, nil
}
