package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"loyalty-points/internal/auth"
	"loyalty-points/internal/service"
)

// PointHandler serves earn, redeem, balance and history endpoints.
type PointHandler struct {
	points *service.PointService
}

// NewPointHandler creates a new PointHandler.
func NewPointHandler(points *service.PointService) *PointHandler {
	return &PointHandler{points: points}
}

type earnRequest struct {
	UserID       string `json:"userId"`
	ScenarioType string `json:"scenarioType"`
	CourseID     string `json:"courseId"`
	OrderID      string `json:"orderId"`
	Description  string `json:"description"`
	OperationID  string `json:"operationId"`
}

type redeemRequest struct {
	UserID      string `json:"userId"`
	Points      int64  `json:"points"`
	OrderID     string `json:"orderId"`
	Description string `json:"description"`
	OperationID string `json:"operationId"`
}

// callerOr returns userID, or the caller's own id when userID is empty.
func callerOr(r *http.Request, userID string) string {
	if userID = strings.TrimSpace(userID); userID != "" {
		return userID
	}
	if p, ok := auth.FromContext(r.Context()); ok {
		return p.UserID
	}
	return ""
}

// Earn handles POST /api/points/earn.
func (h *PointHandler) Earn(w http.ResponseWriter, r *http.Request) {
	var req earnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ScenarioType) == "" {
		writeError(w, r, badRequest("scenarioType is required"))
		return
	}

	userID := callerOr(r, req.UserID)
	if err := authorizeUser(r, userID); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.points.Earn(r.Context(), userID, req.ScenarioType, service.EarnMetadata{
		Description: req.Description,
		CourseID:    req.CourseID,
		OrderID:     req.OrderID,
		OperationID: req.OperationID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeOK(w, status, result)
}

// Redeem handles POST /api/points/redeem.
func (h *PointHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		writeError(w, r, badRequest("orderId is required"))
		return
	}

	userID := callerOr(r, req.UserID)
	if err := authorizeUser(r, userID); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.points.Redeem(r.Context(), userID, req.Points, req.OrderID, service.RedeemMetadata{
		Description: req.Description,
		OperationID: req.OperationID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeOK(w, status, result)
}

// Balance handles GET /api/points/balance/{userId}.
func (h *PointHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if err := authorizeUser(r, userID); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := h.points.GetBalance(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, view)
}

// History handles GET /api/points/history/{userId}?page=&limit=.
func (h *PointHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if err := authorizeUser(r, userID); err != nil {
		writeError(w, r, err)
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", service.DefaultPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.points.GetHistory(r.Context(), userID, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, result)
}
