package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-service/internal/presence"
	"messaging-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints behind the auth middleware.
// Disabled outside development.
func RegisterDebugRoutes(router *gin.Engine, authn gin.HandlerFunc, emitter *telemetry.AuditEmitter, presenceStore presence.Store, enabled bool) {
	if !enabled {
		return
	}

	debug := router.Group("/debug", authn)

	debug.GET("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	debug.GET("/presence/:user_id", func(c *gin.Context) {
		userID, err := strconv.Atoi(c.Param("user_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}

		online, err := presenceStore.IsOnline(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "presence read failed"})
			return
		}
		resp := gin.H{"user_id": userID, "online": online}
		if last, ok, err := presenceStore.LastUpdate(c.Request.Context(), userID); err == nil && ok {
			resp["last_update"] = last
		}
		c.JSON(http.StatusOK, resp)
	})
}

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}
