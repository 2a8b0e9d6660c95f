package sites

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/identity"
	"github.com/leego972/sitewarden/internal/incidents"
	"github.com/leego972/sitewarden/internal/pkg/httputil"
	"github.com/leego972/sitewarden/internal/repair"
)

// Pagination constants.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Handler handles HTTP requests for sites, incidents and repairs.
type Handler struct {
	service *Service
}

// NewHandler creates a new sites handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the authenticated API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard", h.GetDashboardStats)

	r.Route("/sites", func(r chi.Router) {
		r.Get("/", h.ListSites)
		r.Post("/", h.AddSite)
		r.Get("/{id}", h.GetSite)
		r.Patch("/{id}", h.UpdateSite)
		r.Delete("/{id}", h.DeleteSite)
		r.Post("/{id}/pause", h.TogglePause)
		r.Get("/{id}/health", h.GetHealthHistory)
		r.Post("/{id}/check", h.TriggerCheck)
		r.Post("/{id}/repair", h.TriggerRepair)
		r.Post("/{id}/test", h.TestConnection)
	})

	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.GetIncidents)
		r.Post("/{id}/resolve", h.ResolveIncident)
		r.Post("/{id}/ignore", h.IgnoreIncident)
	})

	r.Get("/repairs", h.GetRepairLogs)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrSiteNotFound, Status: http.StatusNotFound},
	{Error: incidents.ErrIncidentNotFound, Status: http.StatusNotFound},
	{Error: incidents.ErrIncidentClosed, Status: http.StatusConflict},
	{Error: ErrSiteQuotaReached, Status: http.StatusForbidden},
	{Error: ErrIntervalTooShort, Status: http.StatusBadRequest},
	{Error: ErrCheckTooSoon, Status: http.StatusTooManyRequests},
	{Error: ErrInvalidAction, Status: http.StatusBadRequest},
	{Error: ErrCommandRequired, Status: http.StatusBadRequest},
	{Error: ErrIncidentMismatch, Status: http.StatusBadRequest},
}

// CredentialsRequest carries repair credentials. Secrets are write-only and
// never returned by the API.
type CredentialsRequest struct {
	APIEndpoint string            `json:"api_endpoint" validate:"omitempty,http_url"`
	APIToken    string            `json:"api_token"`
	APIHeaders  map[string]string `json:"api_headers"`

	SSHHost       string `json:"ssh_host" validate:"omitempty,hostname_rfc1123|ip"`
	SSHPort       int    `json:"ssh_port" validate:"omitempty,min=1,max=65535"`
	SSHUser       string `json:"ssh_user" validate:"max=64"`
	SSHPrivateKey string `json:"ssh_private_key"`

	LoginURL      string `json:"login_url" validate:"omitempty,http_url"`
	LoginUsername string `json:"login_username"`
	LoginPassword string `json:"login_password"`

	RepairWebhookURL    string `json:"repair_webhook_url" validate:"omitempty,http_url"`
	RepairWebhookSecret string `json:"repair_webhook_secret"`

	PlatformToken         string `json:"platform_token"`
	PlatformProjectID     string `json:"platform_project_id"`
	PlatformServiceID     string `json:"platform_service_id"`
	PlatformEnvironmentID string `json:"platform_environment_id"`
	PlatformTeamID        string `json:"platform_team_id"`
}

// ToDomain converts the request to domain credentials.
func (c *CredentialsRequest) ToDomain() domain.Credentials {
	return domain.Credentials{
		APIEndpoint:           c.APIEndpoint,
		APIToken:              c.APIToken,
		APIHeaders:            c.APIHeaders,
		SSHHost:               c.SSHHost,
		SSHPort:               c.SSHPort,
		SSHUser:               c.SSHUser,
		SSHPrivateKey:         c.SSHPrivateKey,
		LoginURL:              c.LoginURL,
		LoginUsername:         c.LoginUsername,
		LoginPassword:         c.LoginPassword,
		RepairWebhookURL:      c.RepairWebhookURL,
		RepairWebhookSecret:   c.RepairWebhookSecret,
		PlatformToken:         c.PlatformToken,
		PlatformProjectID:     c.PlatformProjectID,
		PlatformServiceID:     c.PlatformServiceID,
		PlatformEnvironmentID: c.PlatformEnvironmentID,
		PlatformTeamID:        c.PlatformTeamID,
	}
}

// CreateSiteRequest represents the request body for adding a site.
type CreateSiteRequest struct {
	Name                   string             `json:"name" validate:"required,min=1,max=255"`
	URL                    string             `json:"url" validate:"required,http_url,max=2048"`
	CheckIntervalSeconds   int                `json:"check_interval_seconds" validate:"omitempty,min=1,max=86400"`
	AccessMethod           string             `json:"access_method" validate:"omitempty,oneof=none api ssh login webhook railway vercel netlify render heroku"`
	Credentials            CredentialsRequest `json:"credentials"`
	ExpectedStatusCode     int                `json:"expected_status_code" validate:"omitempty,min=100,max=599"`
	ExpectedBodyContains   string             `json:"expected_body_contains" validate:"max=1024"`
	TimeoutSeconds         int                `json:"timeout_seconds" validate:"omitempty,min=1,max=120"`
	FollowRedirects        *bool              `json:"follow_redirects"`
	SSLCheckEnabled        *bool              `json:"ssl_check_enabled"`
	PerformanceThresholdMs int                `json:"performance_threshold_ms" validate:"min=0"`
	AlertEnabled           bool               `json:"alert_enabled"`
	AlertDestination       string             `json:"alert_destination" validate:"max=512"`
	AlertThreshold         int                `json:"alert_threshold" validate:"omitempty,min=1,max=100"`
	AutoRepairEnabled      bool               `json:"auto_repair_enabled"`
}

// ToInput converts the request to a service input.
func (r *CreateSiteRequest) ToInput() SiteInput {
	return SiteInput{
		Name:                   r.Name,
		URL:                    r.URL,
		CheckIntervalSeconds:   r.CheckIntervalSeconds,
		AccessMethod:           domain.AccessMethod(r.AccessMethod),
		Credentials:            r.Credentials.ToDomain(),
		ExpectedStatusCode:     r.ExpectedStatusCode,
		ExpectedBodyContains:   r.ExpectedBodyContains,
		TimeoutSeconds:         r.TimeoutSeconds,
		FollowRedirects:        r.FollowRedirects,
		SSLCheckEnabled:        r.SSLCheckEnabled,
		PerformanceThresholdMs: r.PerformanceThresholdMs,
		AlertEnabled:           r.AlertEnabled,
		AlertDestination:       r.AlertDestination,
		AlertThreshold:         r.AlertThreshold,
		AutoRepairEnabled:      r.AutoRepairEnabled,
	}
}

// UpdateSiteRequest represents the request body for a partial site update.
type UpdateSiteRequest struct {
	Name                   *string             `json:"name" validate:"omitempty,min=1,max=255"`
	URL                    *string             `json:"url" validate:"omitempty,http_url,max=2048"`
	CheckIntervalSeconds   *int                `json:"check_interval_seconds" validate:"omitempty,min=1,max=86400"`
	AccessMethod           *string             `json:"access_method" validate:"omitempty,oneof=none api ssh login webhook railway vercel netlify render heroku"`
	Credentials            *CredentialsRequest `json:"credentials"`
	ExpectedStatusCode     *int                `json:"expected_status_code" validate:"omitempty,min=100,max=599"`
	ExpectedBodyContains   *string             `json:"expected_body_contains" validate:"omitempty,max=1024"`
	TimeoutSeconds         *int                `json:"timeout_seconds" validate:"omitempty,min=1,max=120"`
	FollowRedirects        *bool               `json:"follow_redirects"`
	SSLCheckEnabled        *bool               `json:"ssl_check_enabled"`
	PerformanceThresholdMs *int                `json:"performance_threshold_ms" validate:"omitempty,min=0"`
	AlertEnabled           *bool               `json:"alert_enabled"`
	AlertDestination       *string             `json:"alert_destination" validate:"omitempty,max=512"`
	AlertThreshold         *int                `json:"alert_threshold" validate:"omitempty,min=1,max=100"`
	AutoRepairEnabled      *bool               `json:"auto_repair_enabled"`
}

// ToPatch converts the request to a service patch.
func (r *UpdateSiteRequest) ToPatch() SitePatch {
	patch := SitePatch{
		Name:                   r.Name,
		URL:                    r.URL,
		CheckIntervalSeconds:   r.CheckIntervalSeconds,
		ExpectedStatusCode:     r.ExpectedStatusCode,
		ExpectedBodyContains:   r.ExpectedBodyContains,
		TimeoutSeconds:         r.TimeoutSeconds,
		FollowRedirects:        r.FollowRedirects,
		SSLCheckEnabled:        r.SSLCheckEnabled,
		PerformanceThresholdMs: r.PerformanceThresholdMs,
		AlertEnabled:           r.AlertEnabled,
		AlertDestination:       r.AlertDestination,
		AlertThreshold:         r.AlertThreshold,
		AutoRepairEnabled:      r.AutoRepairEnabled,
	}
	if r.AccessMethod != nil {
		method := domain.AccessMethod(*r.AccessMethod)
		patch.AccessMethod = &method
	}
	if r.Credentials != nil {
		creds := r.Credentials.ToDomain()
		patch.Credentials = &creds
	}
	return patch
}

// RepairRequest represents the request body for a manual repair.
type RepairRequest struct {
	Action        string `json:"action" validate:"omitempty,oneof=platform_restart restart_service clear_cache dns_flush webhook_trigger custom_command"`
	CustomCommand string `json:"custom_command" validate:"max=1024"`
	IncidentID    string `json:"incident_id" validate:"omitempty,uuid"`
}

// ResolveIncidentRequest represents the optional body of a resolve request.
type ResolveIncidentRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

// ListSites handles GET /sites request.
func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListSites(r.Context(), p)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, list)
}

// AddSite handles POST /sites request.
func (h *Handler) AddSite(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CreateSiteRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	site, err := h.service.AddSite(r.Context(), p, req.ToInput())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusCreated, site)
}

// GetSite handles GET /sites/{id} request.
func (h *Handler) GetSite(w http.ResponseWriter, r *http.Request) {
	p, id, ok := principalAndID(w, r)
	if !ok {
		return
	}

	site, err := h.service.GetSite(r.Context(), p, id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, site)
}

// UpdateSite handles PATCH /sites/{id} request.
func (h *Handler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	p, id, ok := principalAndID(w, r)
	if !ok {
		return
	}

	var req UpdateSiteRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	site, err := h.service.UpdateSite(r.Context(), p, id, req.ToPatch())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, site)
}

// DeleteSite handles DELETE /sites/{id} request.
func (h *Handler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	p, id, ok := principalAndID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteSite(r.Context(), p, id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TogglePause handles POST /sites/{id}/pause request.
func (h *Handler) TogglePause(w http.ResponseWriter, r *http.Request) {
	p, id, ok := principalAndID(w, r)
	if !ok {
		return
	}

	site, err := h.service.TogglePause(r.Context(), p, id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, site)
}

// GetHealthHistory handles GET /sites/{id}/health request.
func (h *Handler) GetHealthHistory(w http.ResponseWriter, r *http.Request) {
	p, id, ok := principalAndID(w, r)
	if !ok {
		return
	}

	hours, err := queryInt(r, "hours", DefaultHistoryHours)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid hours parameter")
		return
	}
	limit, err := queryInt(r, "limit", DefaultHistoryLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}

	checks, err := h.service.GetHealthHistory(r.Context(), p, id, hours, limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, checks)
}

// TriggerCheck handles POST /sites/{id}/check request.
func (h *Handler) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	p, id, ok := principalAndID(w, r)
	if !ok {
		return
	}

	hc, err := h.service.TriggerCheck(r.Context(), p, id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, hc)
}

// TriggerRepair handles POST /sites/{id}/repair request.
func (h *Handler) TriggerRepair(w http.ResponseWriter, r *http.Request) {
	p, id, ok := principalAndID(w, r)
	if !ok {
		return
	}

	var req RepairRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			httputil.ValidationError(w, err)
			return
		}
	}

	log, err := h.service.TriggerRepair(r.Context(), p, id, RepairInput{
		Action:        domain.RepairAction(req.Action),
		CustomCommand: req.CustomCommand,
		IncidentID:    req.IncidentID,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, log)
}

// TestConnection handles POST /sites/{id}/test request.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	p, id, ok := principalAndID(w, r)
	if !ok {
		return
	}

	result, err := h.service.TestConnection(r.Context(), p, id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, result)
}

// GetIncidents handles GET /incidents request.
func (h *Handler) GetIncidents(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := incidents.Filter{SiteID: q.Get("site_id")}
	if filter.SiteID != "" && uuid.Validate(filter.SiteID) != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid site_id parameter")
		return
	}
	if status := domain.IncidentStatus(q.Get("status")); status != "" {
		if !status.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid status parameter")
			return
		}
		filter.Status = status
	}
	limit, err := queryInt(r, "limit", DefaultListLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}
	filter.Limit = min(limit, MaxListLimit)

	list, err := h.service.GetIncidents(r.Context(), p, filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, list)
}

// ResolveIncident handles POST /incidents/{id}/resolve request.
func (h *Handler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	p, id, ok := principalAndID(w, r)
	if !ok {
		return
	}

	var req ResolveIncidentRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			httputil.ValidationError(w, err)
			return
		}
	}

	inc, err := h.service.ResolveIncident(r.Context(), p, id, req.Note)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, inc)
}

// IgnoreIncident handles POST /incidents/{id}/ignore request.
func (h *Handler) IgnoreIncident(w http.ResponseWriter, r *http.Request) {
	p, id, ok := principalAndID(w, r)
	if !ok {
		return
	}

	inc, err := h.service.IgnoreIncident(r.Context(), p, id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, inc)
}

// GetRepairLogs handles GET /repairs request.
func (h *Handler) GetRepairLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := repair.LogFilter{SiteID: q.Get("site_id"), IncidentID: q.Get("incident_id")}
	for name, v := range map[string]string{"site_id": filter.SiteID, "incident_id": filter.IncidentID} {
		if v != "" && uuid.Validate(v) != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid "+name+" parameter")
			return
		}
	}
	limit, err := queryInt(r, "limit", DefaultListLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}
	filter.Limit = min(limit, MaxListLimit)

	logs, err := h.service.GetRepairLogs(r.Context(), p, filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, logs)
}

// GetDashboardStats handles GET /dashboard request.
func (h *Handler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	stats, err := h.service.GetDashboardStats(r.Context(), p)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, stats)
}

func principal(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
	}
	return p, ok
}

func principalAndID(w http.ResponseWriter, r *http.Request) (identity.Principal, string, bool) {
	p, ok := principal(w, r)
	if !ok {
		return p, "", false
	}
	id := chi.URLParam(r, "id")
	if uuid.Validate(id) != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid id")
		return p, "", false
	}
	return p, id, true
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}
