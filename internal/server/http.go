package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mhilgert/docdepot/internal/conf"
	"github.com/mhilgert/docdepot/internal/depot/service"
	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/mhilgert/docdepot/internal/pkg/response"
	"go.uber.org/zap"
)

type HTTPServer struct {
	server *http.Server
	logger *logger.Logger
}

func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	admin *service.AdminService,
	public *service.PublicService,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Token-facing routes; the token is the capability.
	router.GET("/document/:token", public.GetDocument)
	router.GET("/info/:token", public.GetInfo)
	router.POST("/attachment/:token", public.PostAttachment)
	router.GET("/r/:token", public.Redirect)

	// Management API behind the shared secret.
	api := router.Group("/api")
	api.Use(APIKeyMiddleware(config.Auth.APIKey))
	{
		api.POST("/add_document", admin.AddDocument)
		api.POST("/generate_token", admin.GenerateToken)
		api.DELETE("/delete_document", admin.DeleteDocument)
		api.DELETE("/delete_token", admin.DeleteToken)
		api.DELETE("/delete_user", admin.DeleteUser)
		api.PUT("/update_token_valid_until", admin.UpdateTokenValidUntil)
		api.PUT("/update_user_expiry_date", admin.UpdateUserExpiryDate)
		api.PUT("/set_all_users_expiry_date", admin.SetAllUsersExpiryDate)
		api.POST("/rename_users", admin.RenameUsers)
		api.POST("/check_token_validity", admin.CheckTokenValidity)
		api.GET("/average_time_for_all_users", admin.AverageTimeForAllUsers)
		api.GET("/get_events", admin.GetEvents)
		api.GET("/get_documents", admin.GetDocuments)
		api.GET("/get_users", admin.GetUsers)
		api.POST("/add_redirect", admin.AddRedirect)
		api.DELETE("/delete_redirect", admin.DeleteRedirect)
		api.GET("/version", admin.GetVersion)
	}

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)

	return &HTTPServer{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		logger: log,
	}
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// APIKeyMiddleware gates the management API with a constant-time shared
// secret comparison against the Authorization header.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			response.Unauthorized(c, "management API disabled")
			c.Abort()
			return
		}
		provided := c.GetHeader("Authorization")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			response.Unauthorized(c, "invalid API key")
			c.Abort()
			return
		}
		c.Next()
	}
}

func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		log.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
