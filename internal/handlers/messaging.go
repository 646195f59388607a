package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/models"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/services"
)

// DefaultQueueName is used by GET /receive when no queueName is given.
const DefaultQueueName = "testQueue"

// SessionService is the broker session the handlers drive.
type SessionService interface {
	Connect(brokerURL, username, password string) error
	Disconnect() error
	Send(queueName, text string) error
	Receive(queueName string) (text string, ok bool, err error)
	IsConnected() bool
}

// MessagingHandler exposes the broker session over HTTP.
type MessagingHandler struct {
	sessions SessionService
}

// NewMessagingHandler creates a MessagingHandler backed by sessions.
func NewMessagingHandler(sessions SessionService) *MessagingHandler {
	return &MessagingHandler{sessions: sessions}
}

// Connect opens the broker session.
// Returns 400 when already connected and 503 when the broker cannot be reached.
func (h *MessagingHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req models.ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sessions.Connect(req.BrokerURL, req.Username, req.Password); err != nil {
		h.writeSessionError(w, r, "Connection failed: ", err)
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "connected"})
}

// Disconnect closes the broker session.
func (h *MessagingHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Disconnect(); err != nil {
		h.writeSessionError(w, r, "Disconnect failed: ", err)
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "disconnected"})
}

// Send publishes one text message.
func (h *MessagingHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req models.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sessions.Send(req.QueueName, req.Message); err != nil {
		h.writeSessionError(w, r, "Failed to send message: ", err)
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "message sent"})
}

// Receive waits briefly for one message.
// Returns 204 with an empty body when nothing arrived in time.
func (h *MessagingHandler) Receive(w http.ResponseWriter, r *http.Request) {
	queueName := r.URL.Query().Get("queueName")
	if queueName == "" {
		queueName = DefaultQueueName
	}

	text, ok, err := h.sessions.Receive(queueName)
	if err != nil {
		h.writeSessionError(w, r, "Failed to receive message: ", err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: text})
}

// Status reports whether a broker session is open.
func (h *MessagingHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := "disconnected"
	if h.sessions.IsConnected() {
		status = "connected"
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Status: status})
}

// writeSessionError maps state errors to 400 and everything else to 503.
func (h *MessagingHandler) writeSessionError(w http.ResponseWriter, r *http.Request, prefix string, err error) {
	if errors.Is(err, services.ErrAlreadyConnected) || errors.Is(err, services.ErrNotConnected) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeErrorWithCause(r.Context(), w, http.StatusServiceUnavailable, prefix+err.Error(), err)
}
