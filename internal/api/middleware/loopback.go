package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// LoopbackOnly middleware rejects callers that are not on the local
// machine. The ingest worker trusts only its own host; the front server
// authenticates submitters before anything lands in the queue.
func LoopbackOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}

		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			c.String(http.StatusForbidden, "This endpoint is only available from localhost\n")
			c.Abort()
			return
		}

		c.Next()
	}
}
