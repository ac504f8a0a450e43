package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func testContext(remoteAddr string, headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)
	c.Request.RemoteAddr = remoteAddr
	for k, v := range headers {
		c.Request.Header.Set(k, v)
	}
	return c
}

func TestGetClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.7:4711",
			want:       "192.0.2.7",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "192.0.2.7"},
			want:       "192.0.2.7",
		},
		{
			name:       "x-forwarded-for hop list",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "192.0.2.7, 10.0.0.2, 10.0.0.1"},
			want:       "192.0.2.7",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "192.0.2.9"},
			want:       "192.0.2.9",
		},
		{
			name:       "garbage x-forwarded-for falls through",
			remoteAddr: "192.0.2.7:4711",
			headers:    map[string]string{"X-Forwarded-For": "unknown"},
			want:       "192.0.2.7",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::17]:443",
			want:       "2001:db8::17",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ip := GetClientIP(testContext(tc.remoteAddr, tc.headers))
			assert.Equal(t, tc.want, ip.String())
		})
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	RespondError(c, http.StatusForbidden, "no")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "no\n", rec.Body.String())
}
