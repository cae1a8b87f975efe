package authbroker

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCredential(keyPEM string) TenantCredential {
	return TenantCredential{
		OrganizationID: testOrgID,
		APIType:        testAPIType,
		ClientID:       "acme-87",
		KeyID:          "acme-87-key-id",
		PrivateKeyPEM:  keyPEM,
		STSURL:         "https://sts-st.example.io",
		APIBaseURL:     "https://api.example.io",
	}
}

func TestSignProducesVerifiableAssertion(t *testing.T) {
	keyPEM, rsaKey := generateRSAPEM(t)
	signer := NewAssertionSigner()

	signed, err := signer.Sign(testCredential(keyPEM))
	require.NoError(t, err)

	pub, err := jwk.FromRaw(rsaKey.Public())
	require.NoError(t, err)

	tok, err := jwt.Parse([]byte(signed),
		jwt.WithKey(jwa.RS256, pub),
		jwt.WithValidate(true),
		jwt.WithAudience("https://sts-st.example.io/oauth2/token"),
	)
	require.NoError(t, err)

	assert.Equal(t, "acme-87", tok.Issuer())
	assert.Equal(t, "acme-87", tok.Subject())
	assert.Equal(t, 60*time.Second, tok.Expiration().Sub(tok.IssuedAt()))
	assert.True(t, strings.HasPrefix(tok.JwtID(), "acme-87_"))

	msg, err := jws.Parse([]byte(signed))
	require.NoError(t, err)
	hdr := msg.Signatures()[0].ProtectedHeaders()
	assert.Equal(t, "acme-87-key-id", hdr.KeyID())
	assert.Equal(t, "JWT", hdr.Type())
	assert.Equal(t, jwa.RS256, hdr.Algorithm())
}

func TestSignUniqueJTI(t *testing.T) {
	keyPEM, _ := generateRSAPEM(t)
	signer := NewAssertionSigner()
	cred := testCredential(keyPEM)

	a, err := signer.Sign(cred)
	require.NoError(t, err)
	b, err := signer.Sign(cred)
	require.NoError(t, err)

	ta, err := jwt.Parse([]byte(a), jwt.WithVerify(false), jwt.WithValidate(false))
	require.NoError(t, err)
	tb, err := jwt.Parse([]byte(b), jwt.WithVerify(false), jwt.WithValidate(false))
	require.NoError(t, err)
	assert.NotEqual(t, ta.JwtID(), tb.JwtID())
}

func TestSignMismatchedKeyFailsVerification(t *testing.T) {
	keyPEM, _ := generateRSAPEM(t)
	_, otherKey := generateRSAPEM(t)

	signed, err := NewAssertionSigner().Sign(testCredential(keyPEM))
	require.NoError(t, err)

	pub, err := jwk.FromRaw(otherKey.Public())
	require.NoError(t, err)
	_, err = jwt.Parse([]byte(signed), jwt.WithKey(jwa.RS256, pub))
	require.Error(t, err)
}

func TestSignRejectsBadKeyMaterial(t *testing.T) {
	t.Run("garbage PEM", func(t *testing.T) {
		_, err := NewAssertionSigner().Sign(testCredential("not a key"))
		var serr *SigningError
		require.True(t, errors.As(err, &serr))
	})

	t.Run("non-RSA key for RS256", func(t *testing.T) {
		ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		der, err := x509.MarshalPKCS8PrivateKey(ecKey)
		require.NoError(t, err)
		ecPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

		_, err = NewAssertionSigner().Sign(testCredential(ecPEM))
		var serr *SigningError
		require.True(t, errors.As(err, &serr))
	})
}
