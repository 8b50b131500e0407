package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"tradelink/internal/adapter/api/middleware"
	"tradelink/internal/infrastructure/websocket"
	"tradelink/internal/usecase"
	"tradelink/pkg/logger"
)

// Close codes on the realtime endpoints.
const (
	CloseUnauthorized = 4001
	CloseForbidden    = 4003
)

const (
	wsPongWait  = 60 * time.Second
	wsReadLimit = 64 * 1024
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	chatUseCase *usecase.ChatUseCase
	manager     *websocket.Manager
	authMW      *middleware.AuthMiddleware
}

func NewWebSocketHandler(chatUseCase *usecase.ChatUseCase, manager *websocket.Manager, authMW *middleware.AuthMiddleware) *WebSocketHandler {
	return &WebSocketHandler{
		chatUseCase: chatUseCase,
		manager:     manager,
		authMW:      authMW,
	}
}

type clientCommand struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// HandleNotifications serves the cross-thread notification connection.
// On open the caller joins their notification group and receives an
// unread-count snapshot; afterwards the connection only relays group
// events and answers pings.
func (h *WebSocketHandler) HandleNotifications(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}

	uid, err := h.authMW.VerifyWithTimeout(c.Request().Context(), c.QueryParam("token"))
	if err != nil {
		closeWith(conn, CloseUnauthorized, "unauthorized")
		return nil
	}

	client := websocket.NewClient(uid, conn)
	go client.WritePump()

	h.manager.JoinUserGroup(uid, client)
	defer func() {
		h.manager.LeaveUserGroup(uid, client)
		close(client.Send)
	}()

	if total, err := h.chatUseCase.GetUnreadCount(c.Request().Context(), uid); err == nil {
		client.SendJSON(map[string]interface{}{
			"type":         "unread_count",
			"unread_total": total,
		})
	} else {
		logger.Warn("HandleNotifications: unread snapshot failed for %s: %v", uid, err)
	}

	h.readLoop(conn, client, func(cmd clientCommand) {
		// Notification connections take no commands besides ping.
	})
	return nil
}

// HandleThread serves the per-thread room connection. Joining marks the
// thread read; the room then accepts send and read commands.
func (h *WebSocketHandler) HandleThread(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}

	uid, err := h.authMW.VerifyWithTimeout(c.Request().Context(), c.QueryParam("token"))
	if err != nil {
		closeWith(conn, CloseUnauthorized, "unauthorized")
		return nil
	}

	threadID := c.Param("id")
	if _, err := uuid.Parse(threadID); err != nil {
		closeWith(conn, CloseForbidden, "forbidden")
		return nil
	}
	if _, err := h.chatUseCase.GetThreadWithPermission(c.Request().Context(), threadID, uid); err != nil {
		closeWith(conn, CloseForbidden, "forbidden")
		return nil
	}

	client := websocket.NewClient(uid, conn)
	go client.WritePump()

	h.manager.JoinRoom(threadID, client)
	defer func() {
		h.manager.LeaveRoom(threadID, client)
		close(client.Send)
	}()

	h.markRead(client, threadID)

	h.readLoop(conn, client, func(cmd clientCommand) {
		switch cmd.Type {
		case "send":
			text := strings.TrimSpace(cmd.Text)
			if text == "" {
				return
			}
			ctx := c.Request().Context()
			if _, err := h.chatUseCase.SendMessage(ctx, threadID, uid, text); err != nil {
				// Oversized and rate-limited sends are dropped, the
				// REST path is where those surface as errors.
				logger.Warn("HandleThread: send dropped for %s on %s: %v", uid, threadID, err)
			}
		case "read":
			h.markRead(client, threadID)
		}
	})
	return nil
}

func (h *WebSocketHandler) markRead(client *websocket.Client, threadID string) {
	ack, err := h.chatUseCase.MarkThreadRead(context.Background(), threadID, client.UserID)
	if err != nil {
		logger.Warn("markRead: failed for %s on %s: %v", client.UserID, threadID, err)
		return
	}

	client.SendJSON(map[string]interface{}{
		"type":         "read_ack",
		"thread_id":    ack.ThreadID,
		"unread_total": ack.UnreadTotal,
	})
	h.manager.BroadcastToRoom(threadID, map[string]interface{}{
		"type":      "read_receipt",
		"user_id":   client.UserID,
		"thread_id": threadID,
	})
}

// readLoop owns the connection's read side until the peer goes away.
// Unknown command types are ignored.
func (h *WebSocketHandler) readLoop(conn *gorilla.Conn, client *websocket.Client, handle func(clientCommand)) {
	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		if cmd.Type == "ping" {
			client.SendJSON(map[string]string{"type": "pong"})
			continue
		}
		handle(cmd)
	}
}

func closeWith(conn *gorilla.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(gorilla.CloseMessage, gorilla.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}
