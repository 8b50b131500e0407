package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelink/internal/domain/entity"
	apperrors "tradelink/pkg/errors"
)

func newMessage(threadID, senderID, text string) *entity.Message {
	return &entity.Message{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

func TestGetOrCreateIdempotent(t *testing.T) {
	repo := NewMemoryThreadRepository()
	ctx := context.Background()

	first, created, err := repo.GetOrCreate(ctx, "buyer-1", "supplier-1", "product-1")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.GetOrCreate(ctx, "buyer-1", "supplier-1", "product-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateScopesAreDistinct(t *testing.T) {
	repo := NewMemoryThreadRepository()
	ctx := context.Background()

	general, _, err := repo.GetOrCreate(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)
	scoped, _, err := repo.GetOrCreate(ctx, "buyer-1", "supplier-1", "product-1")
	require.NoError(t, err)
	other, _, err := repo.GetOrCreate(ctx, "buyer-1", "supplier-1", "product-2")
	require.NoError(t, err)

	assert.NotEqual(t, general.ID, scoped.ID)
	assert.NotEqual(t, scoped.ID, other.ID)
}

func TestGetOrCreateConcurrent(t *testing.T) {
	repo := NewMemoryThreadRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 10)
	createdCount := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			thread, created, err := repo.GetOrCreate(ctx, "buyer-1", "supplier-1", "product-1")
			if !assert.NoError(t, err) {
				return
			}
			ids <- thread.ID
			createdCount <- created
		}()
	}
	wg.Wait()
	close(ids)
	close(createdCount)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)

	creations := 0
	for created := range createdCount {
		if created {
			creations++
		}
	}
	assert.Equal(t, 1, creations)
}

func TestCreateInitializesBothReadStates(t *testing.T) {
	repo := NewMemoryThreadRepository()
	ctx := context.Background()

	thread, _, err := repo.GetOrCreate(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)

	for _, userID := range []string{"buyer-1", "supplier-1"} {
		unread, err := repo.ThreadUnread(ctx, thread.ID, userID)
		require.NoError(t, err)
		assert.Equal(t, 0, unread)
	}
}

func TestAppendMessageIncrementsPeerOnly(t *testing.T) {
	repo := NewMemoryThreadRepository()
	ctx := context.Background()

	thread, _, err := repo.GetOrCreate(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)

	before := thread.UpdatedAt
	time.Sleep(time.Millisecond)

	require.NoError(t, repo.AppendMessage(ctx, newMessage(thread.ID, "buyer-1", "hello"), "supplier-1"))
	require.NoError(t, repo.AppendMessage(ctx, newMessage(thread.ID, "buyer-1", "anyone there?"), "supplier-1"))

	supplierUnread, err := repo.ThreadUnread(ctx, thread.ID, "supplier-1")
	require.NoError(t, err)
	assert.Equal(t, 2, supplierUnread)

	buyerUnread, err := repo.ThreadUnread(ctx, thread.ID, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, 0, buyerUnread)

	updated, err := repo.GetByID(ctx, thread.ID)
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(before))
}

func TestMarkReadZeroesCounter(t *testing.T) {
	repo := NewMemoryThreadRepository()
	ctx := context.Background()

	thread, _, err := repo.GetOrCreate(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)
	require.NoError(t, repo.AppendMessage(ctx, newMessage(thread.ID, "buyer-1", "hi"), "supplier-1"))

	require.NoError(t, repo.MarkRead(ctx, thread.ID, "supplier-1", time.Now()))

	unread, err := repo.ThreadUnread(ctx, thread.ID, "supplier-1")
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestTotalUnreadSumsAcrossThreads(t *testing.T) {
	repo := NewMemoryThreadRepository()
	ctx := context.Background()

	t1, _, err := repo.GetOrCreate(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)
	t2, _, err := repo.GetOrCreate(ctx, "buyer-2", "supplier-1", "")
	require.NoError(t, err)

	require.NoError(t, repo.AppendMessage(ctx, newMessage(t1.ID, "buyer-1", "a"), "supplier-1"))
	require.NoError(t, repo.AppendMessage(ctx, newMessage(t1.ID, "buyer-1", "b"), "supplier-1"))
	require.NoError(t, repo.AppendMessage(ctx, newMessage(t2.ID, "buyer-2", "c"), "supplier-1"))

	total, err := repo.TotalUnread(ctx, "supplier-1")
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	require.NoError(t, repo.MarkRead(ctx, t1.ID, "supplier-1", time.Now()))
	total, err = repo.TotalUnread(ctx, "supplier-1")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestListMessagesPagination(t *testing.T) {
	repo := NewMemoryThreadRepository()
	ctx := context.Background()

	thread, _, err := repo.GetOrCreate(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)
	for i := 1; i <= 45; i++ {
		msg := newMessage(thread.ID, "buyer-1", fmt.Sprintf("msg-%d", i))
		require.NoError(t, repo.AppendMessage(ctx, msg, "supplier-1"))
	}

	page1, total, err := repo.ListMessages(ctx, thread.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 45, total)
	require.Len(t, page1, 20)
	assert.Equal(t, "msg-26", page1[0].Text)
	assert.Equal(t, "msg-45", page1[19].Text)

	page2, _, err := repo.ListMessages(ctx, thread.ID, 2, 20)
	require.NoError(t, err)
	require.Len(t, page2, 20)
	assert.Equal(t, "msg-6", page2[0].Text)
	assert.Equal(t, "msg-25", page2[19].Text)

	page3, _, err := repo.ListMessages(ctx, thread.ID, 3, 20)
	require.NoError(t, err)
	require.Len(t, page3, 5)
	assert.Equal(t, "msg-1", page3[0].Text)
	assert.Equal(t, "msg-5", page3[4].Text)

	page4, _, err := repo.ListMessages(ctx, thread.ID, 4, 20)
	require.NoError(t, err)
	assert.Empty(t, page4)
}

func TestListByUserOrdersByActivity(t *testing.T) {
	repo := NewMemoryThreadRepository()
	ctx := context.Background()

	t1, _, err := repo.GetOrCreate(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, _, err = repo.GetOrCreate(ctx, "buyer-1", "supplier-2", "")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	// New activity moves the older thread back to the front.
	require.NoError(t, repo.AppendMessage(ctx, newMessage(t1.ID, "supplier-1", "ping"), "buyer-1"))

	threads, err := repo.ListByUser(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, t1.ID, threads[0].ID)
}

func TestGetByIDUnknownThread(t *testing.T) {
	repo := NewMemoryThreadRepository()

	_, err := repo.GetByID(context.Background(), uuid.New().String())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeThreadNotFound))
}

func TestLastMessage(t *testing.T) {
	repo := NewMemoryThreadRepository()
	ctx := context.Background()

	thread, _, err := repo.GetOrCreate(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)

	last, err := repo.LastMessage(ctx, thread.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, repo.AppendMessage(ctx, newMessage(thread.ID, "buyer-1", "first"), "supplier-1"))
	require.NoError(t, repo.AppendMessage(ctx, newMessage(thread.ID, "buyer-1", "second"), "supplier-1"))

	last, err = repo.LastMessage(ctx, thread.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "second", last.Text)
}
