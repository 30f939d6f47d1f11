package controllers

import (
	"net/http"

	"smidr/smidr/types"
	httputils "smidr/smidr/utils/http"
)

// SessionCounter is satisfied by *session.MemoryStore.
type SessionCounter interface {
	Len() int
}

type HealthController struct {
	mode     string
	sessions SessionCounter
}

func NewHealthController(mode string, sessions SessionCounter) *HealthController {
	return &HealthController{mode: mode, sessions: sessions}
}

func (h *HealthController) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := types.HealthResponse{Status: "ok", Mode: h.mode}
	if h.sessions != nil {
		resp.Sessions = h.sessions.Len()
	}
	httputils.WriteJSON(w, http.StatusOK, resp)
}
