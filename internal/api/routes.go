// routes.go - Route registration helpers
package api

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Widget  Widget
	Relay   Relay
	Jobs    JobManager
	Spool   Spooler
	Backend Pinger
	Version string
	// WSMaxMessageKB limits inbound websocket frames.
	WSMaxMessageKB int
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Staging StagingHandler
	Upload  UploadHandler
	Chat    ChatHandler
	Hub     *Hub
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.Backend),
		Staging: NewStagingHandler(deps.Widget, deps.Spool),
		Upload:  NewUploadHandler(deps.Jobs),
		Chat:    NewChatHandler(deps.Relay),
		Hub:     NewHub(deps.Widget, deps.Relay, deps.WSMaxMessageKB),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/health", handlers.Health.HandleHealth)

	stagingGroup := e.Group("/api/staging")
	stagingGroup.GET("", handlers.Staging.HandleGetView)
	stagingGroup.GET("/msgpack", handlers.Staging.HandleGetViewMsgpack)
	stagingGroup.POST("/paths", handlers.Staging.HandleAddPaths)
	stagingGroup.POST("/drop", handlers.Staging.HandleDrop)
	stagingGroup.PUT("/name", handlers.Staging.HandleSetName)
	stagingGroup.DELETE("/:index", handlers.Staging.HandleRemove)

	uploadGroup := e.Group("/api/upload")
	uploadGroup.POST("/submit", handlers.Upload.HandleSubmit)
	uploadGroup.GET("/jobs/:id", handlers.Upload.HandleGetJob)
	uploadGroup.GET("/jobs/:id/stream", handlers.Upload.HandleJobStream)

	chatGroup := e.Group("/api/chat")
	chatGroup.GET("/transcript", handlers.Chat.HandleGetTranscript)
	chatGroup.DELETE("/transcript", handlers.Chat.HandleResetTranscript)
	chatGroup.POST("/transcript/:index/copy", handlers.Chat.HandleCopyEntry)
	chatGroup.POST("/messages", handlers.Chat.HandleSendMessage)
	chatGroup.GET("/knowledge-bases", handlers.Chat.HandleGetKnowledgeBases)
	chatGroup.POST("/knowledge-base", handlers.Chat.HandleSwitchKnowledgeBase)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws", handlers.Hub.HandleWebSocket)
}

// MiddlewareConfig selects the optional middleware
type MiddlewareConfig struct {
	EnableCORS     bool
	AllowOrigins   []string
	BodyLimit      string
	RequestLogging bool
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.Recover())

	if cfg.RequestLogging {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogMethod:  true,
			LogURI:     true,
			LogStatus:  true,
			LogLatency: true,
			LogError:   true,
			Skipper:    isStreaming,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				ev := log.Info()
				if v.Error != nil || v.Status >= 500 {
					ev = log.Error().Err(v.Error)
				}
				ev.Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("[http] request")
				return nil
			},
		}))
	}

	if cfg.EnableCORS {
		origins := cfg.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
			MaxAge:       int((12 * time.Hour).Seconds()),
		}))
	}

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level:   5,
		Skipper: isStreaming,
	}))
}

// isStreaming matches the websocket and SSE endpoints, which must not be
// buffered by gzip.
func isStreaming(c echo.Context) bool {
	p := c.Request().URL.Path
	return p == "/api/ws" || strings.HasSuffix(p, "/stream")
}

// SplitOrigins parses a comma-separated origin list
func SplitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
