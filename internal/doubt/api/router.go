package api

import "github.com/gin-gonic/gin"

// SetupRouter configures and returns the gin engine for the doubt service.
func SetupRouter(h *Handler, jwtSecret string) *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", h.Healthz)

	authMiddleware := AuthMiddleware(jwtSecret)

	apiV1 := r.Group("/api/v1")
	{
		// The guest path is intentionally outside the auth group; abuse is
		// bounded by the per-guest rolling quota instead.
		apiV1.POST("/doubts/anonymous", h.AskAnonymous)

		doubts := apiV1.Group("/doubts")
		doubts.Use(authMiddleware)
		{
			doubts.POST("", h.Ask)
			doubts.GET("", h.List)
			doubts.GET("/:id", h.Get)
			doubts.POST("/:id/escalate", h.Escalate)
			doubts.POST("/:id/cancel", h.Cancel)
			doubts.POST("/:id/answer", RequireRole("instructor"), h.Answer)
		}

		contents := apiV1.Group("/contents")
		contents.Use(authMiddleware)
		{
			contents.DELETE("/:id/doubts", RequireRole("instructor"), h.PurgeContent)
		}
	}

	return r
}
