package riders

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fleetgate/internal/alerts"
	"fleetgate/internal/analytics"
	"fleetgate/internal/authbroker"
	"fleetgate/pkg/middleware"
	"fleetgate/pkg/organizations"
	"fleetgate/pkg/problems"
)

type Handler struct {
	svc    *Service
	kpis   *analytics.Engine
	alerts *alerts.Engine
	prov   organizations.Provider
	log    *zap.SugaredLogger
}

func NewHandler(svc *Service, kpis *analytics.Engine, alertEngine *alerts.Engine, prov organizations.Provider, log *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, kpis: kpis, alerts: alertEngine, prov: prov, log: log}
}

// Register mounts the rider platform routes. Callers wrap the router in
// organization resolution and dashboard auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/riders", func(r chi.Router) {
		r.Use(h.usage)
		r.Get("/contracts", h.proxyGet(func(ctx reqCtx) (json.RawMessage, error) {
			return h.svc.Contracts(ctx.r.Context(), ctx.orgID)
		}))
		r.Get("/vehicle-types", h.proxyGet(func(ctx reqCtx) (json.RawMessage, error) {
			return h.svc.VehicleTypes(ctx.r.Context(), ctx.orgID)
		}))
		r.Get("/starting-points", h.proxyGet(func(ctx reqCtx) (json.RawMessage, error) {
			return h.svc.StartingPoints(ctx.r.Context(), ctx.orgID)
		}))
		r.Get("/cities", h.proxyGet(func(ctx reqCtx) (json.RawMessage, error) {
			return h.svc.Cities(ctx.r.Context(), ctx.orgID)
		}))

		r.Get("/", h.proxyGet(func(ctx reqCtx) (json.RawMessage, error) {
			return h.svc.Riders(ctx.r.Context(), ctx.orgID, filterParams(ctx.r.URL.Query()))
		}))
		r.Post("/", h.proxyBody(func(ctx reqCtx, body json.RawMessage) (json.RawMessage, error) {
			return h.svc.CreateRider(ctx.r.Context(), ctx.orgID, body)
		}))
		r.Get("/{employeeID}", h.proxyGet(func(ctx reqCtx) (json.RawMessage, error) {
			return h.svc.Rider(ctx.r.Context(), ctx.orgID, chi.URLParam(ctx.r, "employeeID"))
		}))
		r.Put("/{employeeID}", h.proxyBody(func(ctx reqCtx, body json.RawMessage) (json.RawMessage, error) {
			return h.svc.UpdateRider(ctx.r.Context(), ctx.orgID, chi.URLParam(ctx.r, "employeeID"), body)
		}))
		r.Post("/{employeeID}/vehicles", h.proxyBody(func(ctx reqCtx, body json.RawMessage) (json.RawMessage, error) {
			return h.svc.AssignVehicle(ctx.r.Context(), ctx.orgID, chi.URLParam(ctx.r, "employeeID"), body)
		}))
		r.Post("/{employeeID}/starting-points", h.proxyBody(func(ctx reqCtx, body json.RawMessage) (json.RawMessage, error) {
			return h.svc.AssignStartingPoints(ctx.r.Context(), ctx.orgID, chi.URLParam(ctx.r, "employeeID"), body)
		}))
		r.Post("/{employeeID}/contracts", h.proxyBody(func(ctx reqCtx, body json.RawMessage) (json.RawMessage, error) {
			return h.svc.AssignContract(ctx.r.Context(), ctx.orgID, chi.URLParam(ctx.r, "employeeID"), body)
		}))

		r.Get("/live/{cityID}", h.proxyGet(func(ctx reqCtx) (json.RawMessage, error) {
			return h.svc.LiveRiders(ctx.r.Context(), ctx.orgID, chi.URLParam(ctx.r, "cityID"))
		}))
		r.Get("/live/{cityID}/{riderID}", h.proxyGet(func(ctx reqCtx) (json.RawMessage, error) {
			return h.svc.LiveRiderDetails(ctx.r.Context(), ctx.orgID, chi.URLParam(ctx.r, "cityID"), chi.URLParam(ctx.r, "riderID"))
		}))
		r.Get("/companies/{cityID}", h.proxyGet(func(ctx reqCtx) (json.RawMessage, error) {
			return h.svc.CompaniesOverview(ctx.r.Context(), ctx.orgID, chi.URLParam(ctx.r, "cityID"))
		}))
		r.Get("/companies/{cityID}/{companyID}", h.proxyGet(func(ctx reqCtx) (json.RawMessage, error) {
			return h.svc.CompanyData(ctx.r.Context(), ctx.orgID, chi.URLParam(ctx.r, "cityID"), chi.URLParam(ctx.r, "companyID"))
		}))
	})

	r.Route("/v1/analytics", func(r chi.Router) {
		r.Use(h.usage)
		r.Get("/kpis/{cityID}", h.handleKPIs)
		r.Get("/alerts/{cityID}", h.handleAlerts)
	})
}

type reqCtx struct {
	r     *http.Request
	orgID string
}

func (h *Handler) proxyGet(fn func(reqCtx) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org := middleware.OrganizationFrom(r.Context())
		body, err := fn(reqCtx{r: r, orgID: org.ID})
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func (h *Handler) proxyBody(fn func(reqCtx, json.RawMessage) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org := middleware.OrganizationFrom(r.Context())
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			problems.Write(w, http.StatusBadRequest, "invalid-body", "Request body unreadable", err.Error())
			return
		}
		body, err := fn(reqCtx{r: r, orgID: org.ID}, payload)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func (h *Handler) handleKPIs(w http.ResponseWriter, r *http.Request) {
	org := middleware.OrganizationFrom(r.Context())
	cityID := chi.URLParam(r, "cityID")
	snapshot, err := h.liveSnapshot(r, org.ID, cityID, true)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out, _ := json.Marshal(h.kpis.Compute(snapshot))
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	org := middleware.OrganizationFrom(r.Context())
	cityID := chi.URLParam(r, "cityID")
	snapshot, err := h.liveSnapshot(r, org.ID, cityID, false)
	if err != nil {
		h.writeError(w, err)
		return
	}
	found, err := h.alerts.Evaluate(r.Context(), org.ID, snapshot)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out, _ := json.Marshal(map[string]any{"alerts": found, "count": len(found)})
	writeJSON(w, http.StatusOK, out)
}

// liveSnapshot fetches the live city data (and, for KPIs, the companies
// overview) into one merged document for the evaluation engines.
func (h *Handler) liveSnapshot(r *http.Request, orgID, cityID string, withCompanies bool) (map[string]any, error) {
	live, err := h.svc.LiveRiders(r.Context(), orgID, cityID)
	if err != nil {
		return nil, err
	}
	snapshot := map[string]any{}
	_ = json.Unmarshal(live, &snapshot)
	if withCompanies {
		if companies, err := h.svc.CompaniesOverview(r.Context(), orgID, cityID); err == nil {
			var cm map[string]any
			if json.Unmarshal(companies, &cm) == nil {
				for k, v := range cm {
					if _, exists := snapshot[k]; !exists {
						snapshot[k] = v
					}
				}
			}
		}
	}
	return snapshot, nil
}

// writeError maps the broker's typed failures onto dashboard responses. The
// route layer owns the HTTP status; the core only classifies.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		derr *authbroker.DecryptionError
		serr *authbroker.SigningError
		xerr *authbroker.TokenExchangeError
		terr *authbroker.TransportError
		aerr *authbroker.AuthenticationFailedError
		uerr *authbroker.UpstreamError
	)
	switch {
	case errors.Is(err, authbroker.ErrCredentialNotFound):
		problems.Write(w, http.StatusFailedDependency, "integration-not-configured",
			"Integration not connected", "Reconnect your integration: no active credentials for this API.")
	case errors.As(err, &aerr):
		problems.Write(w, http.StatusFailedDependency, "integration-auth-failed",
			"Integration authentication failed", "Reconnect your integration: the platform rejected freshly issued credentials.")
	case errors.As(err, &derr), errors.As(err, &serr):
		h.log.Errorw("integration misconfigured", "err", err)
		problems.Write(w, http.StatusInternalServerError, "integration-misconfigured",
			"Integration misconfigured", "Stored credentials are unusable; contact your administrator.")
	case errors.As(err, &xerr):
		h.log.Warnw("token exchange rejected", "status", xerr.Status)
		problems.Write(w, http.StatusBadGateway, "token-exchange-failed",
			"Upstream service unavailable", "The identity service rejected the token request.")
	case errors.As(err, &terr):
		problems.Write(w, http.StatusBadGateway, "upstream-unreachable",
			"Upstream service unavailable", "The fleet platform could not be reached.")
	case errors.As(err, &uerr):
		problems.Write(w, http.StatusBadGateway, "upstream-error",
			"Upstream service error", http.StatusText(uerr.Status))
	default:
		h.log.Errorw("rider route", "err", err)
		problems.Write(w, http.StatusInternalServerError, "internal", "Internal error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// filterParams passes through the whitelisted rider list filters.
func filterParams(q url.Values) url.Values {
	out := url.Values{}
	for _, k := range []string{"status", "city_id", "contract_type", "page", "page_size"} {
		if v := q.Get(k); v != "" {
			out.Set(k, v)
		}
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// usage records one usage event per request for the billing and quota views.
func (h *Handler) usage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		org := middleware.OrganizationFrom(r.Context())
		if org.ID == "" {
			return
		}
		h.prov.RecordUsage(r.Context(), organizations.UsageEvent{
			OrganizationID: org.ID,
			APIType:        APIType,
			Method:         r.Method,
			Path:           r.URL.Path,
			ActorSub:       middleware.ActorSub(r.Context()),
			RequestID:      middleware.RequestIDFrom(r.Context()),
			StatusCode:     rec.status,
			DurationMS:     int(time.Since(start).Milliseconds()),
			StartedAt:      start.UTC(),
			FinishedAt:     time.Now().UTC(),
		})
	})
}
