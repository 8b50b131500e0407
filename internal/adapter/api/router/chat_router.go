package router

import (
	"github.com/labstack/echo/v4"

	"tradelink/internal/adapter/api/handler"
	"tradelink/internal/adapter/api/middleware"
)

func SetupChatRoutes(e *echo.Echo, chatHandler *handler.ChatHandler, authMW *middleware.AuthMiddleware) {
	chat := e.Group("/v1/chat", authMW.Authenticate)

	chat.GET("/threads", chatHandler.ListThreads)
	chat.POST("/threads", chatHandler.CreateThread)
	chat.GET("/threads/:id/messages", chatHandler.ListMessages)
	chat.POST("/threads/:id/messages", chatHandler.SendMessage)
	chat.POST("/threads/:id/read", chatHandler.MarkRead)
	chat.GET("/unread-count", chatHandler.UnreadCount)
}
