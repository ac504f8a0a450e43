package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nivlheim/nivlheim/internal/api/middleware"
	"github.com/nivlheim/nivlheim/internal/ca"
	"github.com/nivlheim/nivlheim/internal/enroll"
)

// EnrollHandler handles certificate requests and renewals
type EnrollHandler struct {
	enroller *enroll.Enroller
}

// NewEnrollHandler creates a new enrollment handler
func NewEnrollHandler(enroller *enroll.Enroller) *EnrollHandler {
	return &EnrollHandler{enroller: enroller}
}

// ReqCert handles a first-time certificate request
// GET /reqcert?hostname=
func (h *EnrollHandler) ReqCert(c *gin.Context) {
	peerIP := GetClientIP(c)
	hostname := c.Query("hostname")

	result, err := h.enroller.RequestCert(peerIP, hostname)
	if err != nil {
		if errors.Is(err, enroll.ErrMissingHostname) {
			RespondError(c, http.StatusBadRequest, "Missing hostname parameter")
			return
		}
		log.Printf("reqcert failed for %s: %v", peerIP, err)
		RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	switch result.Outcome {
	case enroll.OutcomeIssued:
		RespondText(c, http.StatusOK, result.Bundle)
	case enroll.OutcomeWaiting:
		RespondText(c, http.StatusOK, "Your request has been added to the waiting list. Please try again later.\n")
	case enroll.OutcomePending:
		RespondText(c, http.StatusOK, "Your request is pending approval, please be patient.\n")
	case enroll.OutcomeBusy:
		// Not an error condition; the client retries on its next run.
		RespondText(c, http.StatusOK, "The certificate authority is busy, please try again in a few seconds.\n")
	}
}

// RenewCert rotates the certificate the client authenticated with
// GET /secure/renewcert
func (h *EnrollHandler) RenewCert(c *gin.Context) {
	peerCert := middleware.ClientCert(c)
	if peerCert == nil {
		RespondError(c, http.StatusUnauthorized, "A valid client certificate is required")
		return
	}

	bundle, err := h.enroller.RenewCert(peerCert)
	if err != nil {
		switch {
		case errors.Is(err, ca.ErrBusy):
			// The client retries on its next run, same as for reqcert.
			RespondError(c, http.StatusServiceUnavailable, "The certificate authority is busy, please try again in a few seconds.")
		case errors.Is(err, enroll.ErrRevoked):
			RespondError(c, http.StatusForbidden, "Your certificate has been revoked")
		case errors.Is(err, enroll.ErrUnknownCert):
			RespondError(c, http.StatusForbidden, "Your certificate is not recognized")
		case errors.Is(err, enroll.ErrNoHostname):
			RespondError(c, http.StatusInternalServerError, "Unable to determine hostname")
		default:
			log.Printf("renewcert failed for %s: %v", peerCert.Subject.CommonName, err)
			RespondError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	RespondText(c, http.StatusOK, bundle)
}
