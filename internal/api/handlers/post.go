package handlers

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nivlheim/nivlheim/internal/api/middleware"
	"github.com/nivlheim/nivlheim/internal/ca"
	"github.com/nivlheim/nivlheim/internal/ingest"
)

// PostHandler accepts inventory archive uploads
type PostHandler struct {
	ingestor *ingest.Ingestor
}

// NewPostHandler creates a new upload handler
func NewPostHandler(ingestor *ingest.Ingestor) *PostHandler {
	return &PostHandler{ingestor: ingestor}
}

// Post receives a signed archive, queues it and ingests it
// POST /secure/post
func (h *PostHandler) Post(c *gin.Context) {
	peerCert := middleware.ClientCert(c)
	if peerCert == nil {
		RespondError(c, http.StatusUnauthorized, "A valid client certificate is required")
		return
	}

	fileHeader, err := c.FormFile("archive")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "Missing archive")
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != ".tgz" && ext != ".zip" {
		RespondError(c, http.StatusBadRequest, "Unsupported archive format")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	archive, err := io.ReadAll(f)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	if err := verifySignature(peerCert, archive, c.PostForm("signature")); err != nil {
		RespondError(c, http.StatusForbidden, "Signature verification failed")
		return
	}

	name := uuid.NewString() + ext
	archivePath := filepath.Join(h.ingestor.QueueDir(), name)

	if err := os.MkdirAll(h.ingestor.QueueDir(), 0755); err != nil {
		RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if err := os.WriteFile(archivePath, archive, 0644); err != nil {
		RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	meta := &ingest.Metadata{
		Received:      time.Now().UTC(),
		CertFP:        ca.Fingerprint(peerCert),
		IPAddr:        GetClientIP(c).String(),
		OSHostname:    c.PostForm("hostname"),
		CertCN:        peerCert.Subject.CommonName,
		ClientVersion: c.PostForm("version"),
	}
	if err := ingest.WriteMetadata(archivePath+".meta", meta); err != nil {
		os.Remove(archivePath)
		RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	// Queued archives survive a failed ingestion and are retried later.
	if err := h.ingestor.ProcessArchive(name); err != nil {
		log.Printf("Failed to ingest archive from %s: %v", meta.CertCN, err)
		RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	RespondText(c, http.StatusOK, "OK\n")
}

// verifySignature checks the detached SHA-256 signature over the archive
// bytes against the public key of the certificate the client
// authenticated with.
func verifySignature(peerCert *x509.Certificate, archive []byte, signature string) error {
	if signature == "" {
		return errors.New("missing signature")
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}

	pub, ok := peerCert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return errors.New("client certificate does not carry an RSA key")
	}

	digest := sha256.Sum256(archive)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig)
}
