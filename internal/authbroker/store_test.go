package authbroker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetgate/pkg/organizations"
	"fleetgate/pkg/secrets"
)

func TestStoreCredentials(t *testing.T) {
	box := secrets.NewBox("master")
	prov := organizations.NewMemoryProvider(testLogger())
	keyPEM, _ := generateRSAPEM(t)
	seedCredential(t, prov, box, "https://sts-st.example.io", "https://api.example.io", keyPEM)
	store := NewStore(prov, box)

	cred, err := store.Credentials(context.Background(), testOrgID, testAPIType)
	require.NoError(t, err)
	assert.Equal(t, "acme-87", cred.ClientID)
	assert.Equal(t, "acme-87-key-id", cred.KeyID)
	assert.Equal(t, keyPEM, cred.PrivateKeyPEM)
	assert.Equal(t, "https://sts-st.example.io/oauth2/token", cred.TokenEndpoint())
	assert.Equal(t, []string{"read", "write"}, cred.Scopes)
}

func TestStoreCredentialNotFound(t *testing.T) {
	store := NewStore(organizations.NewMemoryProvider(testLogger()), secrets.NewBox("master"))

	_, err := store.Credentials(context.Background(), testOrgID, testAPIType)
	require.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestStoreDecryptionError(t *testing.T) {
	sealBox := secrets.NewBox("key-a")
	prov := organizations.NewMemoryProvider(testLogger())
	keyPEM, _ := generateRSAPEM(t)
	seedCredential(t, prov, sealBox, "https://sts-st.example.io", "https://api.example.io", keyPEM)

	store := NewStore(prov, secrets.NewBox("key-b")) // wrong master key
	_, err := store.Credentials(context.Background(), testOrgID, testAPIType)
	var derr *DecryptionError
	require.True(t, errors.As(err, &derr))
}

func TestStoreIncompleteConfiguration(t *testing.T) {
	box := secrets.NewBox("master")
	prov := organizations.NewMemoryProvider(testLogger())
	blob, err := box.SealJSON(TenantCredential{ClientID: "acme-87"}) // no key material
	require.NoError(t, err)
	require.NoError(t, prov.UpsertConfiguration(context.Background(), organizations.APIConfiguration{
		OrganizationID: testOrgID,
		APIType:        testAPIType,
		Credentials:    blob,
	}))

	_, err = NewStore(prov, box).Credentials(context.Background(), testOrgID, testAPIType)
	require.ErrorIs(t, err, ErrCredentialNotFound)
}
