package authbroker

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleetgate/pkg/organizations"
	"fleetgate/pkg/secrets"
)

const (
	testOrgID   = "11111111-1111-1111-1111-111111111111"
	testAPIType = "rider_platform"
)

func testLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func generateRSAPEM(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), key
}

// seedCredential registers an active configuration for testOrgID.
func seedCredential(t *testing.T, prov *organizations.MemoryProvider, box *secrets.Box, stsURL, apiURL, keyPEM string) {
	t.Helper()
	blob, err := box.SealJSON(TenantCredential{
		ClientID:      "acme-87",
		KeyID:         "acme-87-key-id",
		PrivateKeyPEM: keyPEM,
		STSURL:        stsURL,
		APIBaseURL:    apiURL,
		Scopes:        []string{"read", "write"},
	})
	require.NoError(t, err)
	prov.Add(organizations.Organization{ID: testOrgID, Name: "Acme", Active: true})
	require.NoError(t, prov.UpsertConfiguration(context.Background(), organizations.APIConfiguration{
		OrganizationID: testOrgID,
		APIType:        testAPIType,
		Credentials:    blob,
	}))
}

// newTestBroker wires a broker against the given fake STS and resource API.
func newTestBroker(t *testing.T, stsURL, apiURL string, opts ...BrokerOption) (*Broker, *organizations.MemoryProvider) {
	t.Helper()
	box := secrets.NewBox("test-master-key")
	prov := organizations.NewMemoryProvider(testLogger())
	keyPEM, _ := generateRSAPEM(t)
	seedCredential(t, prov, box, stsURL, apiURL, keyPEM)
	return NewBroker(NewStore(prov, box), testLogger(), opts...), prov
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
