package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/agentk/internal/httpapi/handlers"
	"github.com/suPer8Hu/agentk/internal/httpapi/middleware"
	"github.com/suPer8Hu/agentk/internal/logging"
)

func NewRouter(h *handlers.Handler, log *zap.Logger) *gin.Engine {
	log = logging.OrNop(log)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	// model ids carry slashes ("openai/gpt-4o"); clients send them escaped
	r.UseRawPath = true
	r.UnescapePathValues = true

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "route not found", "data": nil})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"code": 40500, "message": "method not allowed", "data": nil})
	})

	r.GET("/ping", h.Ping)

	api := r.Group("/api")

	api.GET("/sessions", h.ListSessions)
	api.POST("/sessions", h.CreateSession)
	api.PATCH("/sessions/:id", h.RenameSession)
	api.DELETE("/sessions/:id", h.DeleteSession)
	api.GET("/sessions/:id/messages", h.ListMessages)
	api.DELETE("/sessions/:id/messages", h.ClearMessages)
	api.DELETE("/messages/:id", h.DeleteMessage)

	chatGroup := api.Group("/chat")
	chatGroup.POST("/select", h.Select)
	chatGroup.POST("/draft", h.SetDraft)
	chatGroup.GET("/view", h.View)
	chatGroup.POST("/messages", h.Submit)
	chatGroup.POST("/messages/:id/resubmit", h.Resubmit)
	chatGroup.POST("/clear", h.ClearContext)

	api.GET("/models", h.ListModels)
	api.PUT("/models/:id", h.PutModel)
	api.PATCH("/models/:id/enabled", h.SetModelEnabled)
	api.DELETE("/models/:provider/:id", h.DeleteModel)
	api.GET("/providers", h.ListProviders)

	api.GET("/keys", h.ListKeys)
	api.PUT("/keys/:id", h.PutKey)
	api.DELETE("/keys/:id", h.DeleteKey)

	return r
}
