package order_api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/auth"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"
	"ms-ordering/internal/order"
	"ms-ordering/internal/utils"
)

type Handler struct {
	OrderService *order.OrderService
	Kitchen      *order.KitchenService
	Logger       *logger.Logger
}

func NewHandler(orderService *order.OrderService, kitchen *order.KitchenService, log *logger.Logger) *Handler {
	return &Handler{OrderService: orderService, Kitchen: kitchen, Logger: log}
}

// RegisterRoutes mounts the endpoints used by customer devices holding a session token.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/orders", h.PlaceOrder)
	r.Get("/orders", h.ListSessionOrders)
	r.Get("/orders/{orderId}", h.GetOrder)
}

// RegisterStaffRoutes mounts the staff endpoints. The router must already require staff.
func (h *Handler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/orders", h.PlaceStaffOrder)
	r.Get("/orders/{orderId}", h.GetOrder)
	r.Post("/orders/{orderId}/cancel", h.CancelOrder)
	r.Put("/orders/{orderId}/status", h.UpdateOrderStatus)
	r.Put("/order-items/{itemId}/status", h.UpdateItemStatus)
}

// PlaceOrderRequest is the cart sent by a client.
type PlaceOrderRequest struct {
	Type         models.OrderType   `json:"type"`
	BranchID     string             `json:"branch_id"`
	CustomerID   string             `json:"customer_id"`
	CustomerName string             `json:"customer_name"`
	Notes        string             `json:"notes"`
	Lines        []order.SettleLine `json:"lines"`
	CouponCode   string             `json:"coupon_code"`
	RedemptionID string             `json:"redemption_id"`
}

// PlaceOrder settles a dine-in order for the caller's table session.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if id.SessionID == "" {
		http.Error(w, "a table session token is required", http.StatusForbidden)
		return
	}

	var req PlaceOrderRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, "Invalid order", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("PlaceOrder: session=%s lines=%d", id.SessionID, len(req.Lines)))

	o, err := h.OrderService.Settle(r.Context(), order.SettleRequest{
		OrganizationID: id.OrganizationID,
		BranchID:       id.BranchID,
		TableSessionID: id.SessionID,
		CustomerID:     id.CustomerID,
		Type:           models.OrderTypeDineIn,
		CustomerName:   req.CustomerName,
		Notes:          req.Notes,
		Lines:          req.Lines,
		CouponCode:     req.CouponCode,
		RedemptionID:   req.RedemptionID,
	})
	h.writeSettled(w, o, err)
}

// PlaceStaffOrder settles a counter order (takeout or delivery) on behalf of a customer.
func (h *Handler) PlaceStaffOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req PlaceOrderRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, "Invalid order", err)
		return
	}
	if req.Type == models.OrderTypeDineIn {
		utils.WriteError(w, h.Logger, "Invalid order",
			apperr.BadRequest(apperr.ReasonInvalidType, "dine-in orders are placed from the table"))
		return
	}
	branchID := req.BranchID
	if id.BranchID != "" {
		branchID = id.BranchID
	}
	h.Logger.Info("API", fmt.Sprintf("PlaceStaffOrder: branch=%s staff=%s lines=%d", branchID, id.Subject, len(req.Lines)))

	o, err := h.OrderService.Settle(r.Context(), order.SettleRequest{
		OrganizationID: id.OrganizationID,
		BranchID:       branchID,
		CustomerID:     req.CustomerID,
		Type:           req.Type,
		CustomerName:   req.CustomerName,
		Notes:          req.Notes,
		Lines:          req.Lines,
		CouponCode:     req.CouponCode,
		RedemptionID:   req.RedemptionID,
	})
	h.writeSettled(w, o, err)
}

func (h *Handler) writeSettled(w http.ResponseWriter, o *models.Order, err error) {
	if err != nil {
		if apperr.CodeOf(err) != apperr.CodeInternal {
			h.Logger.Debug("API", fmt.Sprintf("Order rejected: %v", err))
		}
		utils.WriteError(w, h.Logger, "Order not placed", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Order placed", o))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Debug("API", fmt.Sprintf("GetOrder: orderId=%s", orderID))

	o, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		utils.WriteError(w, h.Logger, "Order not found", err)
		return
	}
	id, _ := auth.FromContext(r.Context())
	if !canViewOrder(id, o) {
		// Same answer as a missing order, so ids cannot be probed.
		utils.WriteError(w, h.Logger, "Order not found", apperr.NotFound(apperr.ReasonOrderNotFound, "order not found"))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order", o))
}

func (h *Handler) ListSessionOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if id.SessionID == "" {
		http.Error(w, "a table session token is required", http.StatusForbidden)
		return
	}

	orders, err := h.OrderService.ListSessionOrders(r.Context(), id.SessionID)
	if err != nil {
		utils.WriteError(w, h.Logger, "Orders unavailable", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Orders", orders))
}

// staffOrder checks the staff member may act on an order.
func (h *Handler) staffOrder(r *http.Request, orderID string) error {
	o, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		return err
	}
	return h.authorize(r, o)
}

func (h *Handler) authorize(r *http.Request, o *models.Order) error {
	id, _ := auth.FromContext(r.Context())
	if !canViewOrder(id, o) {
		return apperr.NotFound(apperr.ReasonOrderNotFound, "order not found")
	}
	return nil
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("CancelOrder: orderId=%s", orderID))

	if err := h.staffOrder(r, orderID); err != nil {
		utils.WriteError(w, h.Logger, "Order not cancelled", err)
		return
	}
	o, err := h.OrderService.Cancel(r.Context(), orderID)
	if err != nil {
		utils.WriteError(w, h.Logger, "Order not cancelled", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order cancelled", o))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req statusRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, "Invalid status", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("UpdateOrderStatus: orderId=%s status=%s", orderID, req.Status))

	if err := h.staffOrder(r, orderID); err != nil {
		utils.WriteError(w, h.Logger, "Status not updated", err)
		return
	}
	o, err := h.Kitchen.UpdateStatus(r.Context(), orderID, models.OrderStatus(req.Status))
	if err != nil {
		utils.WriteError(w, h.Logger, "Status not updated", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order updated", o))
}

func (h *Handler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")

	var req statusRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, "Invalid status", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("UpdateItemStatus: itemId=%s status=%s", itemID, req.Status))

	owner, err := h.OrderService.GetOrderOfItem(r.Context(), itemID)
	if err == nil {
		err = h.authorize(r, owner)
	}
	if err != nil {
		utils.WriteError(w, h.Logger, "Status not updated", err)
		return
	}
	o, err := h.Kitchen.AdvanceItem(r.Context(), itemID, models.ItemStatus(req.Status))
	if err != nil {
		utils.WriteError(w, h.Logger, "Status not updated", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order updated", o))
}
