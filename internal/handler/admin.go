package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"loyalty-points/internal/auth"
	"loyalty-points/internal/model"
	"loyalty-points/internal/service"
)

const dateLayout = "2006-01-02"

// AdminHandler serves point-config, badge, statistics and reconcile endpoints.
type AdminHandler struct {
	admin    *service.AdminService
	points   *service.PointService
	location *time.Location
}

// NewAdminHandler creates a new AdminHandler. loc anchors date-only
// statistics bounds.
func NewAdminHandler(admin *service.AdminService, points *service.PointService, loc *time.Location) *AdminHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AdminHandler{admin: admin, points: points, location: loc}
}

func auditLog(r *http.Request, action string) {
	ev := log.Info().Str("action", action).Str("path", r.URL.Path)
	if p, ok := auth.FromContext(r.Context()); ok {
		ev = ev.Str("admin_id", p.UserID)
	}
	ev.Msg("Admin operation")
}

// ListConfigs handles GET /api/admin/point-configs.
func (h *AdminHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.admin.ListConfigs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if configs == nil {
		configs = []*model.PointConfig{}
	}
	writeOK(w, http.StatusOK, configs)
}

// GetConfig handles GET /api/admin/point-configs/{id}.
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := h.admin.GetConfig(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, cfg)
}

// CreateConfig handles POST /api/admin/point-configs.
func (h *AdminHandler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var in service.ConfigInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := h.admin.CreateConfig(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auditLog(r, "create_config")
	writeOK(w, http.StatusCreated, cfg)
}

// UpdateConfig handles PUT /api/admin/point-configs/{id}.
func (h *AdminHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in service.ConfigInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := h.admin.UpdateConfig(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auditLog(r, "update_config")
	writeOK(w, http.StatusOK, cfg)
}

// DeleteConfig handles DELETE /api/admin/point-configs/{id}.
func (h *AdminHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.admin.DeleteConfig(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	auditLog(r, "delete_config")
	writeMessage(w, http.StatusOK, "point config deleted")
}

// ListBadges handles GET /api/admin/badges.
func (h *AdminHandler) ListBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := h.admin.ListBadges(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if badges == nil {
		badges = []*model.Badge{}
	}
	writeOK(w, http.StatusOK, badges)
}

// CreateBadge handles POST /api/admin/badges.
func (h *AdminHandler) CreateBadge(w http.ResponseWriter, r *http.Request) {
	var in service.BadgeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.admin.CreateBadge(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auditLog(r, "create_badge")
	writeOK(w, http.StatusCreated, b)
}

// UpdateBadge handles PUT /api/admin/badges/{id}.
func (h *AdminHandler) UpdateBadge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in service.BadgeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.admin.UpdateBadge(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auditLog(r, "update_badge")
	writeOK(w, http.StatusOK, b)
}

// DeleteBadge handles DELETE /api/admin/badges/{id}.
func (h *AdminHandler) DeleteBadge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.admin.DeleteBadge(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	auditLog(r, "delete_badge")
	writeMessage(w, http.StatusOK, "badge deleted")
}

// Statistics handles GET /api/admin/statistics?startDate=&endDate=.
// Dates are YYYY-MM-DD or RFC 3339; a date-only end covers that whole day.
func (h *AdminHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	from, err := h.parseBound(r.URL.Query().Get("startDate"), false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := h.parseBound(r.URL.Query().Get("endDate"), true)
	if err != nil {
		writeError(w, r, err)
		return
	}

	stats, err := h.admin.Statistics(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, stats)
}

func (h *AdminHandler) parseBound(raw string, end bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	day, err := time.ParseInLocation(dateLayout, raw, h.location)
	if err != nil {
		return nil, badRequest("invalid date " + strconv.Quote(raw))
	}
	if end {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, nil
}

type reconcileResponse struct {
	Repaired bool                 `json:"repaired"`
	Drift    []model.BalanceAudit `json:"drift"`
}

// Reconcile handles POST /api/admin/reconcile?repair=true.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	repair := false
	if raw := r.URL.Query().Get("repair"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, badRequest("invalid repair flag"))
			return
		}
		repair = v
	}

	drift, err := h.points.Reconcile(r.Context(), repair)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if drift == nil {
		drift = []model.BalanceAudit{}
	}
	if repair {
		auditLog(r, "reconcile_repair")
	}
	writeOK(w, http.StatusOK, reconcileResponse{Repaired: repair, Drift: drift})
}
