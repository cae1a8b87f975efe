package authbroker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// expirySafetyMargin guarantees a token is never handed out with less
	// than 60 seconds of remaining validity.
	expirySafetyMargin = 60 * time.Second

	// defaultExpiresIn is assumed when the STS omits expires_in.
	defaultExpiresIn = 7200

	defaultSTSTimeout = 30 * time.Second

	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

// Broker orchestrates the token lifecycle per organization: cache consult,
// assertion signing, STS exchange, cache update. Safe for concurrent use;
// concurrent callers observing a miss for the same organization coalesce into
// a single outstanding exchange.
type Broker struct {
	store  *Store
	signer *AssertionSigner
	client *http.Client
	cache  *tokenCache
	group  singleflight.Group
	log    *zap.SugaredLogger
	now    func() time.Time
}

type BrokerOption func(*Broker)

// WithHTTPClient sets the client used for STS exchanges.
func WithHTTPClient(c *http.Client) BrokerOption {
	return func(b *Broker) { b.client = c }
}

// WithClock overrides the broker's time source.
func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) {
		b.now = now
		b.signer.now = now
	}
}

func NewBroker(store *Store, log *zap.SugaredLogger, opts ...BrokerOption) *Broker {
	b := &Broker{
		store:  store,
		signer: NewAssertionSigner(),
		client: &http.Client{Timeout: defaultSTSTimeout},
		cache:  newTokenCache(),
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Token returns a bearer token for the organization / API type pair, minting
// one via the STS when the cache has no usable entry. force bypasses the
// cache; the executor uses it after a 401.
func (b *Broker) Token(ctx context.Context, orgID, apiType string, force bool) (string, error) {
	g, err := b.grant(ctx, orgID, apiType, force)
	if err != nil {
		return "", err
	}
	return g.AccessToken, nil
}

// Invalidate drops the cached token for the pair, if any.
func (b *Broker) Invalidate(orgID, apiType string) {
	b.cache.invalidate(cacheKey{orgID: orgID, apiType: apiType})
}

func (b *Broker) grant(ctx context.Context, orgID, apiType string, force bool) (cachedToken, error) {
	key := cacheKey{orgID: orgID, apiType: apiType}
	if !force {
		if tok, ok := b.cache.get(key); ok && b.now().Before(tok.ExpiresAt) {
			tokenCacheHits.WithLabelValues(orgID).Inc()
			return tok, nil
		}
	}
	v, err, _ := b.group.Do(orgID+"/"+apiType, func() (any, error) {
		if !force {
			// Another caller may have refilled the slot while we queued.
			if tok, ok := b.cache.get(key); ok && b.now().Before(tok.ExpiresAt) {
				return tok, nil
			}
		}
		return b.exchange(ctx, key)
	})
	if err != nil {
		return cachedToken{}, err
	}
	return v.(cachedToken), nil
}

// exchange runs one assertion-for-token round trip against the STS and, on
// success, overwrites the cache slot. On any failure the cache is untouched.
func (b *Broker) exchange(ctx context.Context, key cacheKey) (cachedToken, error) {
	cred, err := b.store.Credentials(ctx, key.orgID, key.apiType)
	if err != nil {
		return cachedToken{}, err
	}
	assertion, err := b.signer.Sign(cred)
	if err != nil {
		return cachedToken{}, err
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_assertion_type", clientAssertionType)
	form.Set("client_assertion", assertion)
	if len(cred.Scopes) > 0 {
		form.Set("scope", strings.Join(cred.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.TokenEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return cachedToken{}, &TransportError{Op: "build sts request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		tokenExchanges.WithLabelValues(key.orgID, "transport_error").Inc()
		return cachedToken{}, &TransportError{Op: "sts exchange", Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		tokenExchanges.WithLabelValues(key.orgID, "rejected").Inc()
		return cachedToken{}, &TokenExchangeError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.AccessToken == "" {
		tokenExchanges.WithLabelValues(key.orgID, "rejected").Inc()
		return cachedToken{}, &TokenExchangeError{Status: resp.StatusCode, Body: string(body)}
	}
	if payload.ExpiresIn <= 0 {
		payload.ExpiresIn = defaultExpiresIn
	}

	tok := cachedToken{
		AccessToken: payload.AccessToken,
		ResourceURL: strings.TrimRight(cred.APIBaseURL, "/"),
		ExpiresAt:   b.now().Add(time.Duration(payload.ExpiresIn)*time.Second - expirySafetyMargin),
	}
	b.cache.put(key, tok)
	tokenExchanges.WithLabelValues(key.orgID, "ok").Inc()
	b.log.Infow("access token obtained", "org", key.orgID, "api", key.apiType, "expires_in", payload.ExpiresIn)
	return tok, nil
}
