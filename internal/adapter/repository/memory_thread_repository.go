package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradelink/internal/domain/entity"
	"tradelink/internal/domain/repository"
	apperrors "tradelink/pkg/errors"
)

// MemoryThreadRepository keeps everything in process memory behind one
// mutex. It backs local development without Firestore credentials and
// the test suites; the semantics match the Firestore implementation.
type MemoryThreadRepository struct {
	mu         sync.RWMutex
	threads    map[string]*entity.Thread
	keys       map[string]string // uniqueness key -> thread id
	messages   map[string][]*entity.Message
	readStates map[string]map[string]*entity.ReadState // thread id -> user id
}

func NewMemoryThreadRepository() *MemoryThreadRepository {
	return &MemoryThreadRepository{
		threads:    make(map[string]*entity.Thread),
		keys:       make(map[string]string),
		messages:   make(map[string][]*entity.Message),
		readStates: make(map[string]map[string]*entity.ReadState),
	}
}

func threadKey(buyerID, supplierID, productID string) string {
	if productID == "" {
		return fmt.Sprintf("%s_%s_general", buyerID, supplierID)
	}
	return fmt.Sprintf("%s_%s_%s", buyerID, supplierID, productID)
}

func (r *MemoryThreadRepository) GetOrCreate(ctx context.Context, buyerID, supplierID, productID string) (*entity.Thread, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := threadKey(buyerID, supplierID, productID)
	if id, ok := r.keys[key]; ok {
		return copyThread(r.threads[id]), false, nil
	}

	now := time.Now()
	thread := &entity.Thread{
		ID:         uuid.New().String(),
		BuyerID:    buyerID,
		SupplierID: supplierID,
		ProductID:  productID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.threads[thread.ID] = thread
	r.keys[key] = thread.ID
	r.readStates[thread.ID] = map[string]*entity.ReadState{
		buyerID:    {ThreadID: thread.ID, UserID: buyerID},
		supplierID: {ThreadID: thread.ID, UserID: supplierID},
	}

	return copyThread(thread), true, nil
}

func (r *MemoryThreadRepository) GetByID(ctx context.Context, id string) (*entity.Thread, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	thread, ok := r.threads[id]
	if !ok {
		return nil, apperrors.NewThreadNotFound(nil)
	}
	return copyThread(thread), nil
}

func (r *MemoryThreadRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Thread, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var threads []*entity.Thread
	for _, t := range r.threads {
		if t.IsParticipant(userID) {
			threads = append(threads, copyThread(t))
		}
	}
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})
	return threads, nil
}

func (r *MemoryThreadRepository) AppendMessage(ctx context.Context, msg *entity.Message, peerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	thread, ok := r.threads[msg.ThreadID]
	if !ok {
		return apperrors.NewThreadNotFound(nil)
	}

	stored := *msg
	r.messages[msg.ThreadID] = append(r.messages[msg.ThreadID], &stored)
	thread.MessageCount++
	thread.UpdatedAt = msg.CreatedAt

	if state, ok := r.readStates[msg.ThreadID][peerID]; ok {
		state.UnreadCount++
	}
	return nil
}

func (r *MemoryThreadRepository) ListMessages(ctx context.Context, threadID string, page, pageSize int) ([]*entity.Message, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.threads[threadID]; !ok {
		return nil, 0, apperrors.NewThreadNotFound(nil)
	}

	all := r.messages[threadID]
	total := len(all)

	// Page 1 is the newest slice; within a page order is oldest first.
	end := total - (page-1)*pageSize
	if end <= 0 {
		return []*entity.Message{}, total, nil
	}
	start := end - pageSize
	if start < 0 {
		start = 0
	}

	msgs := make([]*entity.Message, 0, end-start)
	for _, m := range all[start:end] {
		copied := *m
		msgs = append(msgs, &copied)
	}
	return msgs, total, nil
}

func (r *MemoryThreadRepository) LastMessage(ctx context.Context, threadID string) (*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.messages[threadID]
	if len(all) == 0 {
		return nil, nil
	}
	copied := *all[len(all)-1]
	return &copied, nil
}

func (r *MemoryThreadRepository) MarkRead(ctx context.Context, threadID, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	states, ok := r.readStates[threadID]
	if !ok {
		return apperrors.NewThreadNotFound(nil)
	}
	state, ok := states[userID]
	if !ok {
		return apperrors.NewThreadNotFound(nil)
	}
	state.UnreadCount = 0
	readAt := at
	state.LastReadAt = &readAt
	return nil
}

func (r *MemoryThreadRepository) TotalUnread(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, states := range r.readStates {
		if state, ok := states[userID]; ok {
			total += state.UnreadCount
		}
	}
	return total, nil
}

func (r *MemoryThreadRepository) ThreadUnread(ctx context.Context, threadID, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states, ok := r.readStates[threadID]
	if !ok {
		return 0, apperrors.NewThreadNotFound(nil)
	}
	if state, ok := states[userID]; ok {
		return state.UnreadCount, nil
	}
	return 0, nil
}

func copyThread(t *entity.Thread) *entity.Thread {
	copied := *t
	return &copied
}

var _ repository.ThreadRepository = (*MemoryThreadRepository)(nil)
