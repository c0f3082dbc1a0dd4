package coupon_api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/auth"
	"ms-ordering/internal/coupon"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/utils"
)

type Handler struct {
	Service *coupon.CouponService
	Logger  *logger.Logger
}

func NewHandler(service *coupon.CouponService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterStaffRoutes mounts coupon administration. The router must already require staff.
func (h *Handler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/coupons", h.CreateCoupon)
	r.Post("/coupons/{couponId}/assignments", h.AssignCoupon)
}

// RegisterRoutes mounts the customer-facing coupon endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/coupons/check", h.CheckCoupon)
	r.Post("/coupons/{couponId}/seen", h.MarkSeen)
}

func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req coupon.CreateCouponRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, "Invalid coupon", err)
		return
	}
	// Staff can only create coupons for their own organization.
	if id, ok := auth.FromContext(r.Context()); ok && id.OrganizationID != "" {
		req.OrganizationID = id.OrganizationID
	}

	c, err := h.Service.CreateCoupon(r.Context(), req)
	if err != nil {
		utils.WriteError(w, h.Logger, "Coupon creation failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Coupon created", c))
}

type assignRequest struct {
	CustomerID string `json:"customer_id"`
}

func (h *Handler) AssignCoupon(w http.ResponseWriter, r *http.Request) {
	couponID := chi.URLParam(r, "couponId")

	var req assignRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, "Invalid assignment", err)
		return
	}

	a, err := h.Service.AssignCoupon(r.Context(), couponID, req.CustomerID)
	if err != nil {
		utils.WriteError(w, h.Logger, "Coupon assignment failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Coupon assigned", a))
}

func (h *Handler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	couponID := chi.URLParam(r, "couponId")
	id, _ := auth.FromContext(r.Context())
	if id.CustomerID == "" {
		utils.WriteError(w, h.Logger, "Coupon not updated",
			apperr.BadRequest(apperr.ReasonCustomerRequired, "sign in to view assigned coupons"))
		return
	}

	if err := h.Service.MarkSeen(r.Context(), couponID, id.CustomerID); err != nil {
		utils.WriteError(w, h.Logger, "Coupon not updated", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Coupon marked as seen", nil))
}

type checkRequest struct {
	OrganizationID string `json:"organization_id"`
	Code           string `json:"code"`
	Subtotal       int64  `json:"subtotal"`
}

// CheckCoupon previews whether a code would apply to an order of the given subtotal.
func (h *Handler) CheckCoupon(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, "Invalid coupon check", err)
		return
	}
	id, _ := auth.FromContext(r.Context())
	if id.OrganizationID != "" {
		req.OrganizationID = id.OrganizationID
	}

	c, err := h.Service.CheckCoupon(r.Context(), req.OrganizationID, req.Code, id.CustomerID, req.Subtotal)
	if err != nil {
		utils.WriteError(w, h.Logger, "Coupon not applicable", err)
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("Coupon %s applicable for subtotal %d", c.Code, req.Subtotal))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Coupon applicable", c))
}
