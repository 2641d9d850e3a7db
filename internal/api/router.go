package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"roombook/internal/auth"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

// NewRouter assembles middleware and registers the /api/v1 routes.
func NewRouter(h *Handler, jwtManager *auth.JWTManager, allowedOrigins []string, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	config := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}
	config.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", auth.GraphTokenHeader, RequestIDHeader}
	config.ExposeHeaders = []string{RequestIDHeader}
	r.Use(cors.New(config))

	v1 := r.Group("/api/v1")
	RegisterRoutes(v1, h, auth.AuthRequired(jwtManager))
	return r
}

func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware gin.HandlerFunc) {
	g.Use(authMiddleware)
	{
		g.GET("/rooms", h.ListRooms)
		g.GET("/rooms/summary", h.RoomsSummary)
		g.GET("/rooms/:id/slots", h.RoomSlots)

		g.POST("/draft", h.OpenDraft)
		g.GET("/draft", h.GetDraft)
		g.PATCH("/draft", h.PatchDraft)
		g.DELETE("/draft", h.DiscardDraft)
		g.POST("/draft/submit", h.SubmitDraft)

		g.DELETE("/reservations/:id", h.DeleteReservation)

		g.GET("/directory/users", h.SearchUsers)
		g.GET("/dashboards/:name", h.GetDashboard)
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		c.Next()

		ev := logger.Info()
		if c.Writer.Status() >= 500 {
			ev = logger.Warn()
		}
		ev.Str("request_id", id).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("user", auth.GetUserEmail(c)).
			Msg("http request")
	}
}
