package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fleetgate/pkg/organizations"
)

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := a.prov.ResolveByID(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		if errors.Is(err, organizations.ErrNotFound) {
			http.Error(w, "organization not found", http.StatusNotFound)
			return
		}
		a.log.Errorw("resolve organization", "err", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"id":                org.ID,
		"name":              org.Name,
		"slug":              org.Slug,
		"host":              org.Host,
		"subscription_tier": org.SubscriptionTier,
		"active":            org.Active,
	}, http.StatusOK)
}

// listConfigurations returns configuration metadata only. The sealed blob
// never leaves the provider layer.
func (a *App) listConfigurations(w http.ResponseWriter, r *http.Request) {
	cfgs, err := a.prov.ListConfigurations(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		a.log.Errorw("list configurations", "err", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, map[string]any{
			"id":         c.ID,
			"api_type":   c.APIType,
			"active":     c.Active,
			"updated_at": c.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, map[string]any{"configurations": out}, http.StatusOK)
}

type credentialPayload struct {
	ClientID   string   `json:"client_id"`
	KeyID      string   `json:"key_id"`
	PrivateKey string   `json:"private_key"`
	STSURL     string   `json:"sts_url"`
	APIBaseURL string   `json:"api_base_url"`
	Scopes     []string `json:"scopes"`
}

func (p credentialPayload) validate() string {
	switch {
	case strings.TrimSpace(p.ClientID) == "":
		return "client_id is required"
	case strings.TrimSpace(p.PrivateKey) == "":
		return "private_key is required"
	case !strings.Contains(p.PrivateKey, "PRIVATE KEY"):
		return "private_key must be a PEM encoded RSA key"
	case strings.TrimSpace(p.STSURL) == "":
		return "sts_url is required"
	case strings.TrimSpace(p.APIBaseURL) == "":
		return "api_base_url is required"
	}
	return ""
}

func (a *App) upsertConfiguration(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	apiType := chi.URLParam(r, "apiType")

	var payload credentialPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&payload); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if msg := payload.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	blob, err := a.box.SealJSON(payload)
	if err != nil {
		a.log.Errorw("seal credentials", "err", err)
		http.Error(w, "could not store credentials", http.StatusInternalServerError)
		return
	}
	cfg := organizations.APIConfiguration{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		APIType:        apiType,
		Credentials:    blob,
		Active:         true,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := a.prov.UpsertConfiguration(r.Context(), cfg); err != nil {
		a.log.Errorw("upsert configuration", "err", err)
		http.Error(w, "could not store credentials", http.StatusInternalServerError)
		return
	}
	a.broker.Invalidate(orgID, apiType)
	writeJSON(w, map[string]any{"ok": true, "api_type": apiType}, http.StatusOK)
}

func (a *App) deactivateConfiguration(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	apiType := chi.URLParam(r, "apiType")
	if err := a.prov.DeactivateConfiguration(r.Context(), orgID, apiType); err != nil {
		if errors.Is(err, organizations.ErrConfigurationNotFound) {
			http.Error(w, "configuration not found", http.StatusNotFound)
			return
		}
		a.log.Errorw("deactivate configuration", "err", err)
		http.Error(w, "could not deactivate", http.StatusInternalServerError)
		return
	}
	a.broker.Invalidate(orgID, apiType)
	w.WriteHeader(http.StatusNoContent)
}

type testStep struct {
	Step   string `json:"step"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// testConnection walks the exact stages the dashboard path uses: load and
// decrypt the credential, sign an assertion, force a token exchange, then
// probe the platform with the minted token.
func (a *App) testConnection(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	apiType := chi.URLParam(r, "apiType")

	var steps []testStep
	fail := func(step, detail string) {
		steps = append(steps, testStep{Step: step, OK: false, Detail: detail})
		writeJSON(w, map[string]any{"ok": false, "steps": steps}, http.StatusOK)
	}

	cred, err := a.store.Credentials(r.Context(), orgID, apiType)
	if err != nil {
		fail("load_credentials", err.Error())
		return
	}
	steps = append(steps, testStep{Step: "load_credentials", OK: true})

	if _, err := a.signer.Sign(cred); err != nil {
		fail("sign_assertion", err.Error())
		return
	}
	steps = append(steps, testStep{Step: "sign_assertion", OK: true})

	token, err := a.broker.Token(r.Context(), orgID, apiType, true)
	if err != nil {
		fail("token_exchange", err.Error())
		return
	}
	steps = append(steps, testStep{Step: "token_exchange", OK: true})

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet,
		strings.TrimRight(cred.APIBaseURL, "/")+"/v3/external/cities", nil)
	if err != nil {
		fail("probe", err.Error())
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		fail("probe", err.Error())
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		fail("probe", resp.Status)
		return
	}
	steps = append(steps, testStep{Step: "probe", OK: true, Detail: resp.Status})

	writeJSON(w, map[string]any{"ok": true, "steps": steps}, http.StatusOK)
}
