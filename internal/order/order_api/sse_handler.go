package order_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-ordering/internal/auth"
	"ms-ordering/internal/events"
	"ms-ordering/internal/logger"
)

const heartbeatInterval = 25 * time.Second

// SSEHandler streams order and session events to kitchen displays and table devices.
type SSEHandler struct {
	Logger      *logger.Logger
	Broadcaster *events.Broadcaster
}

func NewSSEHandler(log *logger.Logger, broadcaster *events.Broadcaster) *SSEHandler {
	return &SSEHandler{Logger: log, Broadcaster: broadcaster}
}

// HandleBranchEvents streams every event of a branch. Staff only.
func (h *SSEHandler) HandleBranchEvents(w http.ResponseWriter, r *http.Request) {
	branchID := chi.URLParam(r, "branchId")
	if branchID == "" {
		http.Error(w, "Branch ID is required", http.StatusBadRequest)
		return
	}

	id, _ := auth.FromContext(r.Context())
	if !id.Staff || !branchAllowed(id, branchID) {
		h.Logger.LogSecurity("SSE_DENIED", fmt.Sprintf("%s may not follow branch %s", id.Subject, branchID))
		http.Error(w, "Unauthorized access", http.StatusForbidden)
		return
	}

	h.stream(w, r, "branch", branchID, h.Broadcaster.SubscribeBranch(r.Context(), branchID))
}

// HandleSessionEvents streams the events of the caller's own table session.
func (h *SSEHandler) HandleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if id.SessionID == "" {
		http.Error(w, "a table session token is required", http.StatusForbidden)
		return
	}

	h.stream(w, r, "session", id.SessionID, h.Broadcaster.SubscribeSession(r.Context(), id.SessionID))
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, scope, key string, eventChan <-chan events.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	h.setupSSEHeaders(w)
	ctx := r.Context()

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"%s\":\"%s\"}\n\n", scope, key)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to %s %s", scope, key))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-eventChan:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for %s %s", scope, key))
				return
			}

			jsonData, err := json.Marshal(e)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize %s event: %v", e.Type, err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, jsonData)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from %s %s", scope, key))
			return
		}
	}
}

func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
