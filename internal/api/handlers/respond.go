package handlers

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// RespondText sends a plaintext response. The wire protocol for the
// agent endpoints is plain text, not JSON: the agent matches on literal
// markers and messages.
func RespondText(c *gin.Context, statusCode int, body string) {
	c.String(statusCode, body)
}

// RespondError sends a plaintext error. All 5xx bodies carry the error
// description for operator debugging.
func RespondError(c *gin.Context, statusCode int, message string) {
	c.String(statusCode, message+"\n")
}

// GetClientIP gets the real client IP address as seen by the front
// server.
func GetClientIP(c *gin.Context) net.IP {
	// The front server terminates TLS and forwards the peer address.
	// X-Forwarded-For may carry a hop list; the client is the first entry.
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed
		}
	}

	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		if parsed := net.ParseIP(ip); parsed != nil {
			return parsed
		}
	}

	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return net.ParseIP(c.Request.RemoteAddr)
	}
	return net.ParseIP(host)
}
