package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newProtectedRouter(apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/get_users", APIKeyMiddleware(apiKey), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		apiKey     string
		header     string
		wantStatus int
	}{
		{"valid key", "secret", "secret", http.StatusOK},
		{"wrong key", "secret", "guess", http.StatusUnauthorized},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"no key configured disables the API", "", "anything", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newProtectedRouter(tt.apiKey)

			req := httptest.NewRequest(http.MethodGet, "/api/get_users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
