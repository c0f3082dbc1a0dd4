package session_api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/auth"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"
	"ms-ordering/internal/session"
	"ms-ordering/internal/tables"
	"ms-ordering/internal/utils"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

type Handler struct {
	Service *session.SessionService
	Codec   *tables.Codec
	JoinURL string
	Logger  *logger.Logger
}

func NewHandler(service *session.SessionService, codec *tables.Codec, joinURL string, log *logger.Logger) *Handler {
	return &Handler{Service: service, Codec: codec, JoinURL: joinURL, Logger: log}
}

// RegisterPublicRoutes mounts registration, which runs before the device holds a token.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/sessions", h.Register)
}

// RegisterRoutes mounts the endpoints of an authenticated customer device.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/me", h.GetMySession)
}

// RegisterStaffRoutes mounts session review. The router must already require staff.
func (h *Handler) RegisterStaffRoutes(r chi.Router) {
	r.Route("/sessions/{sessionId}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/approve", h.Approve)
		r.Post("/reject", h.Reject)
		r.Post("/end", h.End)
	})
	r.Get("/tables/{tableId}/qr", h.TableQR)
}

type RegisterRequest struct {
	Code         string `json:"code"`
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
}

type RegisterResponse struct {
	Session *models.TableSession `json:"session"`
	Token   string               `json:"token"`
	Joined  bool                 `json:"joined"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, h.Logger, "Invalid registration", err)
		return
	}

	ref, err := h.Codec.Decode(req.Code)
	if err != nil {
		h.Logger.LogSecurity("INVALID_TABLE_CODE", fmt.Sprintf("from %s", r.RemoteAddr))
		utils.WriteError(w, h.Logger, "Registration failed",
			apperr.BadRequest(apperr.ReasonInvalidTableCode, "table code is not valid"))
		return
	}

	reg, err := h.Service.Register(r.Context(), session.RegisterRequest{
		TableID:      ref.TableID,
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
	})
	if err != nil {
		utils.WriteError(w, h.Logger, "Registration failed", err)
		return
	}

	status, message := http.StatusCreated, "Waiting for staff approval"
	if reg.Joined {
		status, message = http.StatusOK, "Joined table session"
	}
	utils.WriteJSON(w, status, utils.SuccessResponse(message, RegisterResponse{
		Session: reg.Session,
		Token:   reg.Token,
		Joined:  reg.Joined,
	}))
}

func (h *Handler) GetMySession(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if id.SessionID == "" {
		utils.WriteError(w, h.Logger, "Session not found",
			apperr.NotFound(apperr.ReasonSessionNotFound, "no table session for this token"))
		return
	}
	sess, err := h.Service.Get(r.Context(), id.SessionID)
	if err != nil {
		utils.WriteError(w, h.Logger, "Session not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Session retrieved", sess))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.authorize(w, r)
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Session retrieved", sess))
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "Session approved", h.Service.Approve)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "Session rejected", h.Service.Reject)
}

func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "Session ended", h.Service.End)
}

// review loads the session, checks the caller may manage it and applies step.
func (h *Handler) review(w http.ResponseWriter, r *http.Request, message string, step func(context.Context, string, string) (*models.TableSession, error)) {
	sess, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, _ := auth.FromContext(r.Context())

	sess, err := step(r.Context(), sess.ID, id.Subject)
	if err != nil {
		utils.WriteError(w, h.Logger, "Session not updated", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(message, sess))
}

// authorize loads the session in the URL. Sessions outside the caller's
// organization or branch are reported as missing.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (*models.TableSession, bool) {
	sess, err := h.Service.Get(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		utils.WriteError(w, h.Logger, "Session not found", err)
		return nil, false
	}
	id, _ := auth.FromContext(r.Context())
	if !staffCanManage(id, sess.OrganizationID, sess.BranchID) {
		h.Logger.LogSecurity("SESSION_ACCESS_DENIED", fmt.Sprintf("%s tried to access session %s", id.Subject, sess.ID))
		utils.WriteError(w, h.Logger, "Session not found",
			apperr.NotFound(apperr.ReasonSessionNotFound, "session not found"))
		return nil, false
	}
	return sess, true
}

func staffCanManage(id auth.Identity, organizationID, branchID string) bool {
	if !id.Staff {
		return false
	}
	if id.OrganizationID != "" && id.OrganizationID != organizationID {
		return false
	}
	return id.BranchID == "" || id.BranchID == branchID
}

// TableQR renders the join sticker of a table as a PNG. ?size= sets the edge in pixels.
func (h *Handler) TableQR(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableId")
	table, err := h.Service.Sessions.GetTable(r.Context(), tableID)
	if err != nil {
		utils.WriteError(w, h.Logger, "QR generation failed", err)
		return
	}
	id, _ := auth.FromContext(r.Context())
	if table == nil || !staffCanManage(id, table.OrganizationID, table.BranchID) {
		utils.WriteError(w, h.Logger, "QR generation failed",
			apperr.NotFound(apperr.ReasonTableNotFound, "table not found"))
		return
	}

	size := defaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 64 || n > maxQRSize {
			utils.WriteError(w, h.Logger, "QR generation failed",
				apperr.New(apperr.CodeBadRequest, "", fmt.Sprintf("size must be between 64 and %d", maxQRSize)))
			return
		}
		size = n
	}

	png, err := h.Codec.QRCode(h.JoinURL, tables.Ref{
		TableID:        table.ID,
		OrganizationID: table.OrganizationID,
		BranchID:       table.BranchID,
	}, size)
	if err != nil {
		utils.WriteError(w, h.Logger, "QR generation failed", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=table-%s.png", table.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
