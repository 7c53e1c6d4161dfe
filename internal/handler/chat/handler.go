package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parkpal/tagchat/backend/internal/model/chat"
	"github.com/parkpal/tagchat/backend/internal/model/vehicle"
	chatservice "github.com/parkpal/tagchat/backend/internal/service/chat"
	"github.com/parkpal/tagchat/backend/pkg/utils"
)

// Handler exposes the chat engine over HTTP.
type Handler struct {
	chatSvc  *chatservice.Service
	vehicles vehicle.Registry
}

// New creates the chat HTTP handler.
func New(chatSvc *chatservice.Service, vehicles vehicle.Registry) *Handler {
	return &Handler{
		chatSvc:  chatSvc,
		vehicles: vehicles,
	}
}

// RegisterRoutes mounts the session and message endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleGetOrCreateSession)
	r.Delete("/session", h.handleEndSession)
	r.Get("/session/remaining", h.handleTimeRemaining)
	r.Post("/session/scanner", h.handleSetScannerLabel)
	r.Post("/messages", h.handleAppendMessage)
}

func (h *Handler) handleGetOrCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		VehicleID string `json:"vehicleId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.VehicleID == "" {
		utils.RespondError(w, http.StatusBadRequest, "vehicleId is required")
		return
	}
	if _, ok := h.vehicles.FindByRef(payload.VehicleID); !ok {
		utils.RespondError(w, http.StatusNotFound, "vehicle not found")
		return
	}

	session, err := h.chatSvc.GetOrCreateSession(r.Context(), payload.VehicleID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleSetScannerLabel(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		VehicleID string `json:"vehicleId"`
		Label     string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.VehicleID == "" {
		utils.RespondError(w, http.StatusBadRequest, "vehicleId is required")
		return
	}

	if err := h.chatSvc.SetScannerLabel(r.Context(), payload.VehicleID, payload.Label); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Sender    string `json:"sender"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.chatSvc.Append(r.Context(), payload.SessionID, chat.Sender(payload.Sender), payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleTimeRemaining(w http.ResponseWriter, r *http.Request) {
	vehicleID := r.URL.Query().Get("vehicleId")
	if vehicleID == "" {
		utils.RespondError(w, http.StatusBadRequest, "vehicleId query parameter is required")
		return
	}

	minutes := h.chatSvc.TimeRemaining(r.Context(), vehicleID)
	utils.RespondJSON(w, http.StatusOK, map[string]int{"minutes": minutes})
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		VehicleID string `json:"vehicleId"`
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.VehicleID == "" || payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "vehicleId and sessionId are required")
		return
	}

	if err := h.chatSvc.EndSession(r.Context(), payload.VehicleID, payload.SessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// respondServiceError maps engine sentinels onto HTTP statuses. Expired
// sessions get 410 so the frontend knows to start a fresh conversation
// rather than retry.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatservice.ErrSessionExpired):
		utils.RespondError(w, http.StatusGone, err.Error())
	case errors.Is(err, chatservice.ErrMessageTooLong):
		utils.RespondError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, chatservice.ErrVehicleRequired),
		errors.Is(err, chatservice.ErrInvalidSessionID),
		errors.Is(err, chatservice.ErrInvalidSender),
		errors.Is(err, chatservice.ErrEmptyMessage),
		errors.Is(err, chatservice.ErrScannerUnidentified):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
