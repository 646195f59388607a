package handlers

import (
	"net/http"

	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/models"
	"github.com/m1shkaJavaDeveloper/activeMqWildfy/internal/services"
)

type ConfigHandler struct {
	schemes []string
}

func NewConfigHandler(schemes []string) *ConfigHandler {
	return &ConfigHandler{schemes: schemes}
}

// PublicConfig returns non-sensitive configuration for the frontend
func (h *ConfigHandler) PublicConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.PublicConfigResponse{
		SupportedSchemes: h.schemes,
		DefaultQueue:     DefaultQueueName,
		ReceiveTimeoutMs: services.ReceiveTimeout.Milliseconds(),
	})
}
