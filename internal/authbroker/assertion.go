package authbroker

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// assertionTTL is fixed by the STS contract: assertions expire 60 seconds
// after issuance.
const assertionTTL = 60 * time.Second

// AssertionSigner builds and signs single-use RFC 7523 client assertions.
type AssertionSigner struct {
	now func() time.Time
}

func NewAssertionSigner() *AssertionSigner {
	return &AssertionSigner{now: time.Now}
}

// Sign produces a compact-serialized RS256 assertion proving possession of
// the credential's private key. The jti is unique per call so the STS can
// reject replays even when two assertions are minted within the same second.
func (s *AssertionSigner) Sign(cred TenantCredential) (string, error) {
	key, err := jwk.ParseKey([]byte(cred.PrivateKeyPEM), jwk.WithPEM(true))
	if err != nil {
		return "", &SigningError{Err: fmt.Errorf("parse private key: %w", err)}
	}
	if err := key.Set(jwk.KeyIDKey, cred.KeyID); err != nil {
		return "", &SigningError{Err: err}
	}

	now := s.now().Truncate(time.Second)
	jti := fmt.Sprintf("%s_%d", cred.ClientID, s.now().UnixNano())
	tok, err := jwt.NewBuilder().
		Issuer(cred.ClientID).
		Subject(cred.ClientID).
		Audience([]string{cred.TokenEndpoint()}).
		IssuedAt(now).
		Expiration(now.Add(assertionTTL)).
		JwtID(jti).
		Build()
	if err != nil {
		return "", &SigningError{Err: err}
	}

	hdrs := jws.NewHeaders()
	_ = hdrs.Set(jws.TypeKey, "JWT")
	_ = hdrs.Set(jws.KeyIDKey, cred.KeyID)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		// Covers algorithm/key-type mismatch, e.g. an EC key supplied for RS256.
		return "", &SigningError{Err: err}
	}
	return string(signed), nil
}
