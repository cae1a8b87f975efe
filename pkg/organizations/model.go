package organizations

import "time"

// Organization represents one customer account with isolated credentials,
// token state and dashboard users.
type Organization struct {
	ID               string // uuid
	Name             string
	Slug             string // short name (acme)
	Host             string // primary dashboard host (fleet.acme.com)
	SubscriptionTier string // basic | pro | enterprise
	APIQuotaLimit    int
	Active           bool

	// Dashboard auth overrides (else fall back to global config)
	OAuthIssuer       string
	JWKSURL           string
	AcceptedAudiences []string
}

// APIConfiguration is one organization's registered client for an external
// API. Credentials holds the sealed blob; it is opaque at this layer and only
// the auth broker's credential store ever opens it. At most one active row
// exists per (organization, API type).
type APIConfiguration struct {
	ID             string
	OrganizationID string
	APIType        string
	Credentials    []byte
	Active         bool
	UpdatedAt      time.Time
}

// UsageEvent records one dashboard-originated call into an external API.
type UsageEvent struct {
	OrganizationID string
	APIType        string
	Method         string
	Path           string
	ActorSub       string
	RequestID      string
	StatusCode     int
	DurationMS     int
	StartedAt      time.Time
	FinishedAt     time.Time
}
