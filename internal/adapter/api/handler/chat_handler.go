package handler

import (
	"github.com/labstack/echo/v4"

	"tradelink/internal/usecase"
	apperrors "tradelink/pkg/errors"
	"tradelink/pkg/response"
	"tradelink/pkg/utils"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{chatUseCase: chatUseCase}
}

type CreateThreadRequest struct {
	CounterpartyID string `json:"counterparty_id" validate:"required"`
	ProductID      string `json:"product_id"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

func (h *ChatHandler) ListThreads(c echo.Context) error {
	uid := c.Get("uid").(string)

	threads, err := h.chatUseCase.GetUserThreads(c.Request().Context(), uid)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{"threads": threads})
}

func (h *ChatHandler) CreateThread(c echo.Context) error {
	uid := c.Get("uid").(string)

	var req CreateThreadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, apperrors.NewBadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	thread, created, err := h.chatUseCase.CreateOrGetThread(c.Request().Context(), uid, req.CounterpartyID, req.ProductID)
	if err != nil {
		return response.Error(c, err)
	}
	if created {
		return response.Created(c, thread)
	}
	return response.Success(c, thread)
}

func (h *ChatHandler) ListMessages(c echo.Context) error {
	uid := c.Get("uid").(string)
	threadID := c.Param("id")

	page, pageSize := utils.ParsePagination(c.QueryParam("page"), c.QueryParam("page_size"))

	messages, err := h.chatUseCase.GetMessages(c.Request().Context(), threadID, uid, page, pageSize)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, messages)
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	uid := c.Get("uid").(string)
	threadID := c.Param("id")

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, apperrors.NewBadRequest("Invalid request body", err))
	}

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), threadID, uid, req.Text)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, message)
}

func (h *ChatHandler) MarkRead(c echo.Context) error {
	uid := c.Get("uid").(string)
	threadID := c.Param("id")

	ack, err := h.chatUseCase.MarkThreadRead(c.Request().Context(), threadID, uid)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, ack)
}

func (h *ChatHandler) UnreadCount(c echo.Context) error {
	uid := c.Get("uid").(string)

	total, err := h.chatUseCase.GetUnreadCount(c.Request().Context(), uid)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]int{"unread_total": total})
}
