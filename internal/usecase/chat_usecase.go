package usecase

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"tradelink/internal/domain/entity"
	"tradelink/internal/domain/repository"
	apperrors "tradelink/pkg/errors"
	"tradelink/pkg/logger"
)

// MaxMessageLength is counted in characters, not bytes.
const MaxMessageLength = 5000

// Broadcaster pushes events to live websocket connections. The registry
// implements it; tests substitute a recorder.
type Broadcaster interface {
	SendToUser(userID string, payload interface{})
	BroadcastToRoom(threadID string, payload interface{})
}

// Limiter guards the write paths. The token-bucket limiter implements it.
type Limiter interface {
	Allow(key string) bool
}

type ChatUseCase struct {
	threadRepo  repository.ThreadRepository
	userRepo    repository.UserRepository
	productRepo repository.ProductRepository
	broadcaster Broadcaster
	limiter     Limiter
}

func NewChatUseCase(
	threadRepo repository.ThreadRepository,
	userRepo repository.UserRepository,
	productRepo repository.ProductRepository,
	broadcaster Broadcaster,
	limiter Limiter,
) *ChatUseCase {
	return &ChatUseCase{
		threadRepo:  threadRepo,
		userRepo:    userRepo,
		productRepo: productRepo,
		broadcaster: broadcaster,
		limiter:     limiter,
	}
}

type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	UserType string `json:"user_type"`
}

type ProductSummary struct {
	ID   string `json:"id"`
	Name string `json:"product_name"`
}

type MessageResponse struct {
	ID             string    `json:"id"`
	ThreadID       string    `json:"thread_id"`
	SenderID       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

type ThreadResponse struct {
	ID            string           `json:"id"`
	Buyer         UserSummary      `json:"buyer"`
	Supplier      UserSummary      `json:"supplier"`
	Product       *ProductSummary  `json:"product,omitempty"`
	LastMessage   *MessageResponse `json:"last_message,omitempty"`
	LastMessageAt *time.Time       `json:"last_message_at,omitempty"`
	UnreadCount   int              `json:"unread_count"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type MessageListResponse struct {
	Messages []MessageResponse `json:"messages"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	HasMore  bool              `json:"has_more"`
}

type ReadAckResponse struct {
	ThreadID    string `json:"thread_id"`
	UnreadTotal int    `json:"unread_total"`
}

// CreateOrGetThread resolves the buyer/supplier roles from the two
// account types, validates the optional product scope and returns the
// one thread for that key, creating it on first contact. The bool
// reports creation. Any invalid counterparty or scope combination comes
// back as the uniform not-found error.
func (uc *ChatUseCase) CreateOrGetThread(ctx context.Context, requesterID, counterpartyID, productID string) (*ThreadResponse, bool, error) {
	if !uc.limiter.Allow("create_thread:" + requesterID) {
		return nil, false, apperrors.NewTooManyRequests("Too many thread creations")
	}

	if counterpartyID == "" || counterpartyID == requesterID {
		return nil, false, apperrors.NewThreadNotFound(nil)
	}

	requester, err := uc.userRepo.GetByID(ctx, requesterID)
	if err != nil {
		logger.Error("CreateOrGetThread: failed to load requester %s: %v", requesterID, err)
		return nil, false, apperrors.NewInternal("Failed to resolve requester", err)
	}
	counterparty, err := uc.userRepo.GetByID(ctx, counterpartyID)
	if err != nil {
		return nil, false, apperrors.NewThreadNotFound(err)
	}

	var buyer, supplier *entity.User
	if requester.UserType == entity.UserTypeBuyer {
		buyer, supplier = requester, counterparty
	} else {
		buyer, supplier = counterparty, requester
	}
	if buyer.UserType != entity.UserTypeBuyer || supplier.UserType != entity.UserTypeSupplier {
		return nil, false, apperrors.NewThreadNotFound(nil)
	}

	if productID != "" {
		product, err := uc.productRepo.GetByID(ctx, productID)
		if err != nil {
			return nil, false, apperrors.NewThreadNotFound(err)
		}
		if product.OwnerID != supplier.ID {
			return nil, false, apperrors.NewThreadNotFound(nil)
		}
	}

	thread, created, err := uc.threadRepo.GetOrCreate(ctx, buyer.ID, supplier.ID, productID)
	if err != nil {
		logger.Error("CreateOrGetThread: repository failure: %v", err)
		return nil, false, apperrors.NewInternal("Failed to create thread", err)
	}

	resp, err := uc.buildThreadResponse(ctx, thread, requesterID)
	if err != nil {
		return nil, false, err
	}

	if created {
		// A brand new conversation shows up in the counterparty's list
		// without polling.
		counterpartyResp, err := uc.buildThreadResponse(ctx, thread, counterpartyID)
		if err == nil {
			uc.broadcaster.SendToUser(counterpartyID, map[string]interface{}{
				"type":   "thread_updated",
				"thread": counterpartyResp,
			})
		} else {
			logger.Warn("CreateOrGetThread: skipping thread_updated for %s: %v", counterpartyID, err)
		}
	}

	return resp, created, nil
}

// GetUserThreads lists the caller's threads, most recent activity first,
// annotated with counterparty, product, last message and unread count.
func (uc *ChatUseCase) GetUserThreads(ctx context.Context, userID string) ([]*ThreadResponse, error) {
	threads, err := uc.threadRepo.ListByUser(ctx, userID)
	if err != nil {
		logger.Error("GetUserThreads: repository failure: %v", err)
		return nil, apperrors.NewInternal("Failed to list threads", err)
	}

	responses := make([]*ThreadResponse, 0, len(threads))
	for _, thread := range threads {
		resp, err := uc.buildThreadResponse(ctx, thread, userID)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

// GetThreadWithPermission loads the thread only if userID participates.
// A missing thread and a foreign thread are indistinguishable to the
// caller.
func (uc *ChatUseCase) GetThreadWithPermission(ctx context.Context, threadID, userID string) (*entity.Thread, error) {
	thread, err := uc.threadRepo.GetByID(ctx, threadID)
	if err != nil {
		if apperrors.Is(err, apperrors.CodeThreadNotFound) {
			return nil, err
		}
		logger.Error("GetThreadWithPermission: repository failure: %v", err)
		return nil, apperrors.NewInternal("Failed to load thread", err)
	}
	if !thread.IsParticipant(userID) {
		return nil, apperrors.NewThreadNotFound(nil)
	}
	return thread, nil
}

// SendMessage validates and persists the message, then fans out: the
// room gets the message, the peer's notification group gets a
// new-message event plus their fresh cross-thread unread total.
// Persistence always precedes broadcast.
func (uc *ChatUseCase) SendMessage(ctx context.Context, threadID, senderID, text string) (*MessageResponse, error) {
	thread, err := uc.GetThreadWithPermission(ctx, threadID, senderID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewEmptyMessage()
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, apperrors.NewMessageTooLong(MaxMessageLength)
	}

	if !uc.limiter.Allow("send_message:" + senderID) {
		return nil, apperrors.NewTooManyRequests("Too many messages")
	}

	msg := &entity.Message{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: time.Now(),
	}
	peerID := thread.OtherParticipant(senderID)

	if err := uc.threadRepo.AppendMessage(ctx, msg, peerID); err != nil {
		logger.Error("SendMessage: failed to append message to thread %s: %v", threadID, err)
		return nil, apperrors.From(err)
	}

	resp := uc.buildMessageResponse(ctx, msg)

	uc.broadcaster.BroadcastToRoom(threadID, map[string]interface{}{
		"type":    "message",
		"message": resp,
	})
	uc.broadcaster.SendToUser(peerID, map[string]interface{}{
		"type":      "new_message",
		"thread_id": threadID,
		"message":   resp,
	})
	if peerUnread, err := uc.threadRepo.TotalUnread(ctx, peerID); err == nil {
		uc.broadcaster.SendToUser(peerID, map[string]interface{}{
			"type":         "unread_count",
			"unread_total": peerUnread,
		})
	} else {
		logger.Warn("SendMessage: failed to compute unread total for %s: %v", peerID, err)
	}

	return resp, nil
}

// GetMessages returns one page of the thread's history. Page 1 holds the
// newest messages; each page reads oldest first.
func (uc *ChatUseCase) GetMessages(ctx context.Context, threadID, userID string, page, pageSize int) (*MessageListResponse, error) {
	if _, err := uc.GetThreadWithPermission(ctx, threadID, userID); err != nil {
		return nil, err
	}

	msgs, total, err := uc.threadRepo.ListMessages(ctx, threadID, page, pageSize)
	if err != nil {
		logger.Error("GetMessages: repository failure for thread %s: %v", threadID, err)
		return nil, apperrors.From(err)
	}

	usernames := make(map[string]string)
	responses := make([]MessageResponse, 0, len(msgs))
	for _, msg := range msgs {
		username, ok := usernames[msg.SenderID]
		if !ok {
			username = uc.lookupUsername(ctx, msg.SenderID)
			usernames[msg.SenderID] = username
		}
		responses = append(responses, MessageResponse{
			ID:             msg.ID,
			ThreadID:       msg.ThreadID,
			SenderID:       msg.SenderID,
			SenderUsername: username,
			Text:           msg.Text,
			CreatedAt:      msg.CreatedAt,
		})
	}

	return &MessageListResponse{
		Messages: responses,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  page*pageSize < total,
	}, nil
}

// MarkThreadRead zeroes the caller's unread counter for the thread and
// returns their fresh cross-thread total.
func (uc *ChatUseCase) MarkThreadRead(ctx context.Context, threadID, userID string) (*ReadAckResponse, error) {
	if _, err := uc.GetThreadWithPermission(ctx, threadID, userID); err != nil {
		return nil, err
	}

	if err := uc.threadRepo.MarkRead(ctx, threadID, userID, time.Now()); err != nil {
		logger.Error("MarkThreadRead: failed for thread %s user %s: %v", threadID, userID, err)
		return nil, apperrors.From(err)
	}

	total, err := uc.threadRepo.TotalUnread(ctx, userID)
	if err != nil {
		logger.Error("MarkThreadRead: failed to compute unread total for %s: %v", userID, err)
		return nil, apperrors.NewInternal("Failed to compute unread total", err)
	}

	return &ReadAckResponse{ThreadID: threadID, UnreadTotal: total}, nil
}

// GetUnreadCount sums unread messages across all the user's threads.
func (uc *ChatUseCase) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	total, err := uc.threadRepo.TotalUnread(ctx, userID)
	if err != nil {
		logger.Error("GetUnreadCount: repository failure for %s: %v", userID, err)
		return 0, apperrors.NewInternal("Failed to compute unread total", err)
	}
	return total, nil
}

func (uc *ChatUseCase) buildThreadResponse(ctx context.Context, thread *entity.Thread, forUserID string) (*ThreadResponse, error) {
	buyer, err := uc.userRepo.GetByID(ctx, thread.BuyerID)
	if err != nil {
		logger.Error("buildThreadResponse: failed to load buyer %s: %v", thread.BuyerID, err)
		return nil, apperrors.NewInternal("Failed to resolve participants", err)
	}
	supplier, err := uc.userRepo.GetByID(ctx, thread.SupplierID)
	if err != nil {
		logger.Error("buildThreadResponse: failed to load supplier %s: %v", thread.SupplierID, err)
		return nil, apperrors.NewInternal("Failed to resolve participants", err)
	}

	resp := &ThreadResponse{
		ID:        thread.ID,
		Buyer:     UserSummary{ID: buyer.ID, Username: buyer.Username, UserType: string(buyer.UserType)},
		Supplier:  UserSummary{ID: supplier.ID, Username: supplier.Username, UserType: string(supplier.UserType)},
		CreatedAt: thread.CreatedAt,
		UpdatedAt: thread.UpdatedAt,
	}

	if thread.ProductID != "" {
		if product, err := uc.productRepo.GetByID(ctx, thread.ProductID); err == nil {
			resp.Product = &ProductSummary{ID: product.ID, Name: product.Name}
		} else {
			// A thread keeps its product reference even if the catalog
			// no longer serves the product.
			resp.Product = &ProductSummary{ID: thread.ProductID}
		}
	}

	if last, err := uc.threadRepo.LastMessage(ctx, thread.ID); err == nil && last != nil {
		lastResp := uc.buildMessageResponse(ctx, last)
		resp.LastMessage = lastResp
		resp.LastMessageAt = &last.CreatedAt
	}

	if unread, err := uc.threadRepo.ThreadUnread(ctx, thread.ID, forUserID); err == nil {
		resp.UnreadCount = unread
	}

	return resp, nil
}

func (uc *ChatUseCase) buildMessageResponse(ctx context.Context, msg *entity.Message) *MessageResponse {
	return &MessageResponse{
		ID:             msg.ID,
		ThreadID:       msg.ThreadID,
		SenderID:       msg.SenderID,
		SenderUsername: uc.lookupUsername(ctx, msg.SenderID),
		Text:           msg.Text,
		CreatedAt:      msg.CreatedAt,
	}
}

func (uc *ChatUseCase) lookupUsername(ctx context.Context, userID string) string {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		logger.Warn("lookupUsername: failed for %s: %v", userID, err)
		return ""
	}
	return user.Username
}
