package analytics_api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-ordering/internal/analytics"
	"ms-ordering/internal/apperr"
	"ms-ordering/internal/auth"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/utils"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
	now     func() time.Time
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log, now: time.Now}
}

// RegisterStaffRoutes registers the analytics routes. The router must already require staff.
func (h *Handler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/branches/{branchId}/summary", h.GetBranchSummary)
}

// GetBranchSummary reports the branch over ?from=&to= (RFC3339, date or unix
// seconds). The window defaults to the last 24 hours.
func (h *Handler) GetBranchSummary(w http.ResponseWriter, r *http.Request) {
	branchID := chi.URLParam(r, "branchId")
	id, _ := auth.FromContext(r.Context())
	if id.BranchID != "" && id.BranchID != branchID {
		h.Logger.LogSecurity("ANALYTICS_ACCESS_DENIED", fmt.Sprintf("%s requested branch %s", id.Subject, branchID))
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Access denied", "branch not accessible"))
		return
	}

	now := h.now().UTC()
	to, err := utils.ParseTimeParam(r.URL.Query().Get("to"), now)
	if err != nil {
		utils.WriteError(w, h.Logger, "Invalid period", apperr.Wrap(apperr.CodeBadRequest, "", "invalid to", err))
		return
	}
	from, err := utils.ParseTimeParam(r.URL.Query().Get("from"), to.Add(-24*time.Hour))
	if err != nil {
		utils.WriteError(w, h.Logger, "Invalid period", apperr.Wrap(apperr.CodeBadRequest, "", "invalid from", err))
		return
	}

	summary, err := h.Service.Summary(r.Context(), id.OrganizationID, branchID, from.UTC(), to.UTC())
	if err != nil {
		utils.WriteError(w, h.Logger, "Summary failed", err)
		return
	}
	h.Logger.Debug("ANALYTICS", fmt.Sprintf("Branch %s: %d orders, net %d", branchID, summary.Orders, summary.NetRevenue))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Branch summary retrieved", summary))
}
