package middleware

import (
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
)

// Context keys set by RequireClientCert.
const (
	// ClientCertKey holds the parsed *x509.Certificate.
	ClientCertKey = "clientCert"
	// ClientCertNotAfterKey holds the certificate expiry as time.Time,
	// taken from the front server's header when present.
	ClientCertNotAfterKey = "clientCertNotAfter"
)

// Headers filled in by the front server after TLS termination.
const (
	clientCertHeader   = "X-Client-Cert"
	certNotAfterHeader = "X-Client-Cert-Not-After"
)

// RequireClientCert middleware parses the client certificate forwarded
// by the front server and aborts with 401 when it is missing or
// unparseable. The PEM arrives URL-escaped in a header.
func RequireClientCert() gin.HandlerFunc {
	return func(c *gin.Context) {
		escaped := c.GetHeader(clientCertHeader)
		if escaped == "" {
			c.String(http.StatusUnauthorized, "A valid client certificate is required\n")
			c.Abort()
			return
		}

		certPEM, err := url.QueryUnescape(escaped)
		if err != nil {
			c.String(http.StatusUnauthorized, "Malformed client certificate header\n")
			c.Abort()
			return
		}

		block, _ := pem.Decode([]byte(certPEM))
		if block == nil || block.Type != "CERTIFICATE" {
			c.String(http.StatusUnauthorized, "Malformed client certificate\n")
			c.Abort()
			return
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			c.String(http.StatusUnauthorized, "Malformed client certificate\n")
			c.Abort()
			return
		}

		notAfter := cert.NotAfter
		if v := c.GetHeader(certNotAfterHeader); v != "" {
			if parsed, err := time.Parse(time.RFC3339, v); err == nil {
				notAfter = parsed
			}
		}

		c.Set(ClientCertKey, cert)
		c.Set(ClientCertNotAfterKey, notAfter)
		c.Next()
	}
}

// ClientCert returns the certificate stored by RequireClientCert.
func ClientCert(c *gin.Context) *x509.Certificate {
	if v, ok := c.Get(ClientCertKey); ok {
		if cert, ok := v.(*x509.Certificate); ok {
			return cert
		}
	}
	return nil
}

// ClientCertNotAfter returns the expiry stored by RequireClientCert.
func ClientCertNotAfter(c *gin.Context) time.Time {
	if v, ok := c.Get(ClientCertNotAfterKey); ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}
