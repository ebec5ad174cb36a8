package api

import (
	"github.com/gin-gonic/gin"

	"legaladvisor/internal/logger"
)

// NewRouter builds the gin engine with recovery, request logging, CORS and every route.
func NewRouter(h *Handler, allowedOrigins []string, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log), CORS(allowedOrigins))
	h.RegisterRoutes(router)
	return router
}
