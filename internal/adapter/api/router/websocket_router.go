package router

import (
	"github.com/labstack/echo/v4"

	"tradelink/internal/adapter/api/handler"
)

func SetupWebSocketRoutes(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws/chat/threads", wsHandler.HandleNotifications)
	e.GET("/ws/chat/thread/:id", wsHandler.HandleThread)
}
