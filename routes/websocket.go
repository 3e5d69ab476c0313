package routes

import (
	"github.com/gin-gonic/gin"

	"marginalia-reader/marginalia/services"
)

// RegisterWebSocketRoutes exposes the push channel the reader UI keeps open
// while a book is on screen.
func RegisterWebSocketRoutes(group *gin.RouterGroup, wsService services.WebSocketServiceInterface) {
	group.GET("/ws", func(c *gin.Context) {
		wsService.HandleWebSocket(c.Writer, c.Request)
	})
}
