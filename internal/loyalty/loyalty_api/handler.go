package loyalty_api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/auth"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/loyalty"
	"ms-ordering/internal/utils"
)

type Handler struct {
	Service *loyalty.LoyaltyService
	Logger  *logger.Logger
}

func NewHandler(service *loyalty.LoyaltyService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes mounts the loyalty endpoints. Callers must be authenticated.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/loyalty", func(r chi.Router) {
		r.Post("/programs/{programId}/enroll", h.Enroll)
		r.Post("/rewards/{rewardId}/claim", h.ClaimReward)
		r.Get("/enrollments/{enrollmentId}", h.GetStatement)
	})
}

type customerRequest struct {
	CustomerID string `json:"customer_id"`
}

// customerFor resolves whose points are used: customers act for themselves,
// staff act for the customer named in the body.
func (h *Handler) customerFor(r *http.Request) (string, error) {
	id, _ := auth.FromContext(r.Context())
	if !id.Staff {
		if id.CustomerID == "" {
			return "", apperr.BadRequest(apperr.ReasonCustomerRequired, "sign in to use loyalty rewards")
		}
		return id.CustomerID, nil
	}

	var req customerRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		return "", err
	}
	if req.CustomerID == "" {
		return "", apperr.BadRequest(apperr.ReasonCustomerRequired, "customer_id is required")
	}
	return req.CustomerID, nil
}

func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	programID := chi.URLParam(r, "programId")
	customerID, err := h.customerFor(r)
	if err != nil {
		utils.WriteError(w, h.Logger, "Enrollment failed", err)
		return
	}

	enrollment, err := h.Service.Enroll(r.Context(), customerID, programID)
	if err != nil {
		utils.WriteError(w, h.Logger, "Enrollment failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Enrolled", enrollment))
}

func (h *Handler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	rewardID := chi.URLParam(r, "rewardId")
	customerID, err := h.customerFor(r)
	if err != nil {
		utils.WriteError(w, h.Logger, "Reward claim failed", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("ClaimReward: reward=%s customer=%s", rewardID, customerID))

	redemption, err := h.Service.ClaimReward(r.Context(), customerID, rewardID)
	if err != nil {
		utils.WriteError(w, h.Logger, "Reward claim failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Reward claimed", redemption))
}

func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	enrollmentID := chi.URLParam(r, "enrollmentId")

	st, err := h.Service.GetStatement(r.Context(), enrollmentID)
	if err != nil {
		utils.WriteError(w, h.Logger, "Statement unavailable", err)
		return
	}

	id, _ := auth.FromContext(r.Context())
	if !id.Staff && st.Enrollment.CustomerID != id.CustomerID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Loyalty statement", st))
}
