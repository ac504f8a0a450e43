package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nivlheim/nivlheim/internal/api/middleware"
	"github.com/nivlheim/nivlheim/internal/session"
)

// PingHandler answers session-validity checks
type PingHandler struct {
	guard *session.Guard
}

// NewPingHandler creates a new ping handler
func NewPingHandler(guard *session.Guard) *PingHandler {
	return &PingHandler{guard: guard}
}

// Ping checks whether the presented certificate is still good
// GET /secure/ping
func (h *PingHandler) Ping(c *gin.Context) {
	peerCert := middleware.ClientCert(c)
	if peerCert == nil {
		RespondError(c, http.StatusUnauthorized, "A valid client certificate is required")
		return
	}

	result, err := h.guard.Check(peerCert, middleware.ClientCertNotAfter(c), time.Now())
	if err != nil {
		log.Printf("ping failed for %s: %v", peerCert.Subject.CommonName, err)
		RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	if result.Verdict != session.VerdictOK {
		RespondError(c, http.StatusForbidden, result.Reason)
		return
	}

	RespondText(c, http.StatusOK, "pong\n")
}
