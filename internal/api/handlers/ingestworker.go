package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nivlheim/nivlheim/internal/ingest"
)

// IngestHandler drives the queue-pulling ingest worker
type IngestHandler struct {
	ingestor *ingest.Ingestor
}

// NewIngestHandler creates a new ingest worker handler
func NewIngestHandler(ingestor *ingest.Ingestor) *IngestHandler {
	return &IngestHandler{ingestor: ingestor}
}

// ProcessFile ingests one named archive from the queue directory
// GET /ingest?file=
func (h *IngestHandler) ProcessFile(c *gin.Context) {
	name := c.Query("file")
	if name == "" {
		RespondError(c, http.StatusBadRequest, "Missing file parameter")
		return
	}

	// The parameter is a bare queue entry name, never a path.
	if strings.ContainsAny(name, "/\\") {
		RespondError(c, http.StatusForbidden, "Illegal file parameter")
		return
	}

	if err := h.ingestor.ProcessArchive(name); err != nil {
		if errors.Is(err, ingest.ErrGone) {
			RespondError(c, http.StatusGone, "The file is no longer in the queue")
			return
		}
		log.Printf("Failed to ingest %s: %v", name, err)
		RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	RespondText(c, http.StatusOK, "OK\n")
}
