package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapterrepo "tradelink/internal/adapter/repository"
	"tradelink/internal/domain/entity"
	apperrors "tradelink/pkg/errors"
)

type fanoutRecorder struct {
	mu         sync.Mutex
	userEvents map[string][]map[string]interface{}
	roomEvents map[string][]map[string]interface{}
}

func newFanoutRecorder() *fanoutRecorder {
	return &fanoutRecorder{
		userEvents: make(map[string][]map[string]interface{}),
		roomEvents: make(map[string][]map[string]interface{}),
	}
}

func (r *fanoutRecorder) SendToUser(userID string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userEvents[userID] = append(r.userEvents[userID], payload.(map[string]interface{}))
}

func (r *fanoutRecorder) BroadcastToRoom(threadID string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roomEvents[threadID] = append(r.roomEvents[threadID], payload.(map[string]interface{}))
}

func (r *fanoutRecorder) userEventTypes(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, event := range r.userEvents[userID] {
		types = append(types, event["type"].(string))
	}
	return types
}

type stubLimiter struct{ deny bool }

func (l *stubLimiter) Allow(key string) bool { return !l.deny }

type fixture struct {
	uc       *ChatUseCase
	recorder *fanoutRecorder
	limiter  *stubLimiter
	threads  *adapterrepo.MemoryThreadRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := adapterrepo.NewMemoryUserRepository()
	users.Put(&entity.User{ID: "buyer-1", Username: "acme-hotels", UserType: entity.UserTypeBuyer})
	users.Put(&entity.User{ID: "buyer-2", Username: "metro-retail", UserType: entity.UserTypeBuyer})
	users.Put(&entity.User{ID: "supplier-1", Username: "globex-foods", UserType: entity.UserTypeSupplier})
	users.Put(&entity.User{ID: "supplier-2", Username: "initech-supply", UserType: entity.UserTypeSupplier})

	products := adapterrepo.NewMemoryProductRepository()
	products.Put(&entity.Product{ID: "product-1", OwnerID: "supplier-1", Name: "Olive Oil 5L", IsActive: true})
	products.Put(&entity.Product{ID: "product-2", OwnerID: "supplier-2", Name: "Paper Towels", IsActive: true})

	threads := adapterrepo.NewMemoryThreadRepository()
	recorder := newFanoutRecorder()
	limiter := &stubLimiter{}

	return &fixture{
		uc:       NewChatUseCase(threads, users, products, recorder, limiter),
		recorder: recorder,
		limiter:  limiter,
		threads:  threads,
	}
}

func TestCreateOrGetThreadFirstContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-1", "product-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "buyer-1", first.Buyer.ID)
	assert.Equal(t, "supplier-1", first.Supplier.ID)
	require.NotNil(t, first.Product)
	assert.Equal(t, "Olive Oil 5L", first.Product.Name)

	second, created, err := f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-1", "product-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateOrGetThreadRoleResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The supplier opening the conversation lands on the same thread.
	fromBuyer, _, err := f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-1", "product-1")
	require.NoError(t, err)
	fromSupplier, created, err := f.uc.CreateOrGetThread(ctx, "supplier-1", "buyer-1", "product-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, fromBuyer.ID, fromSupplier.ID)
}

func TestCreateOrGetThreadGeneralInquiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	general, created, err := f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, general.Product)

	scoped, _, err := f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-1", "product-1")
	require.NoError(t, err)
	assert.NotEqual(t, general.ID, scoped.ID)
}

func TestCreateOrGetThreadInvalidCombinations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name         string
		requester    string
		counterparty string
		productID    string
	}{
		{"self", "buyer-1", "buyer-1", ""},
		{"two buyers", "buyer-1", "buyer-2", ""},
		{"two suppliers", "supplier-1", "supplier-2", ""},
		{"unknown counterparty", "buyer-1", "nobody", ""},
		{"unknown product", "buyer-1", "supplier-1", "missing-product"},
		{"product owned by another supplier", "buyer-1", "supplier-1", "product-2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.uc.CreateOrGetThread(ctx, tc.requester, tc.counterparty, tc.productID)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.CodeThreadNotFound))
		})
	}
}

func TestCreateOrGetThreadNotifiesCounterparty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-1", "product-1")
	require.NoError(t, err)
	require.Equal(t, []string{"thread_updated"}, f.recorder.userEventTypes("supplier-1"))

	event := f.recorder.userEvents["supplier-1"][0]
	thread := event["thread"].(*ThreadResponse)
	assert.Equal(t, "buyer-1", thread.Buyer.ID)
	assert.Equal(t, 0, thread.UnreadCount)

	// Reopening an existing thread stays quiet.
	_, _, err = f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-1", "product-1")
	require.NoError(t, err)
	assert.Len(t, f.recorder.userEvents["supplier-1"], 1)
}

func TestSendMessageUnreadLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	thread, _, err := f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)

	for _, text := range []string{"Do you deliver on weekends?", "We need 40 units", "Any bulk discount?"} {
		msg, err := f.uc.SendMessage(ctx, thread.ID, "buyer-1", text)
		require.NoError(t, err)
		assert.Equal(t, "acme-hotels", msg.SenderUsername)
	}

	supplierTotal, err := f.uc.GetUnreadCount(ctx, "supplier-1")
	require.NoError(t, err)
	assert.Equal(t, 3, supplierTotal)

	buyerTotal, err := f.uc.GetUnreadCount(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, 0, buyerTotal)

	// Room got each message, the peer got a notification plus a fresh
	// total per message.
	assert.Len(t, f.recorder.roomEvents[thread.ID], 3)
	assert.Equal(t,
		[]string{"thread_updated", "new_message", "unread_count", "new_message", "unread_count", "new_message", "unread_count"},
		f.recorder.userEventTypes("supplier-1"))

	lastCount := f.recorder.userEvents["supplier-1"][6]
	assert.Equal(t, 3, lastCount["unread_total"].(int))

	ack, err := f.uc.MarkThreadRead(ctx, thread.ID, "supplier-1")
	require.NoError(t, err)
	assert.Equal(t, thread.ID, ack.ThreadID)
	assert.Equal(t, 0, ack.UnreadTotal)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	thread, _, err := f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)

	_, err = f.uc.SendMessage(ctx, thread.ID, "buyer-1", "")
	assert.True(t, apperrors.Is(err, apperrors.CodeEmptyMessage))

	_, err = f.uc.SendMessage(ctx, thread.ID, "buyer-1", "   \n\t  ")
	assert.True(t, apperrors.Is(err, apperrors.CodeEmptyMessage))

	_, err = f.uc.SendMessage(ctx, thread.ID, "buyer-1", strings.Repeat("a", MaxMessageLength+1))
	assert.True(t, apperrors.Is(err, apperrors.CodeMessageTooLong))

	// The limit counts characters, not bytes.
	msg, err := f.uc.SendMessage(ctx, thread.ID, "buyer-1", strings.Repeat("é", MaxMessageLength))
	require.NoError(t, err)
	assert.Equal(t, MaxMessageLength, len([]rune(msg.Text)))

	msg, err = f.uc.SendMessage(ctx, thread.ID, "buyer-1", "  padded  ")
	require.NoError(t, err)
	assert.Equal(t, "padded", msg.Text)
}

func TestPermissionsAreHidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	thread, _, err := f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)

	// An outsider and a missing thread produce the same error.
	_, err = f.uc.SendMessage(ctx, thread.ID, "buyer-2", "let me in")
	assert.True(t, apperrors.Is(err, apperrors.CodeThreadNotFound))

	_, err = f.uc.GetMessages(ctx, thread.ID, "buyer-2", 1, 20)
	assert.True(t, apperrors.Is(err, apperrors.CodeThreadNotFound))

	_, err = f.uc.MarkThreadRead(ctx, thread.ID, "buyer-2")
	assert.True(t, apperrors.Is(err, apperrors.CodeThreadNotFound))

	_, err = f.uc.GetMessages(ctx, uuid.New().String(), "buyer-1", 1, 20)
	assert.True(t, apperrors.Is(err, apperrors.CodeThreadNotFound))
}

func TestGetMessagesPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	thread, _, err := f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)

	for i := 0; i < 45; i++ {
		_, err := f.uc.SendMessage(ctx, thread.ID, "buyer-1", "order update")
		require.NoError(t, err)
	}

	page1, err := f.uc.GetMessages(ctx, thread.ID, "supplier-1", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 45, page1.Total)
	assert.Len(t, page1.Messages, 20)
	assert.True(t, page1.HasMore)
	assert.Equal(t, "acme-hotels", page1.Messages[0].SenderUsername)

	page3, err := f.uc.GetMessages(ctx, thread.ID, "supplier-1", 3, 20)
	require.NoError(t, err)
	assert.Len(t, page3.Messages, 5)
	assert.False(t, page3.HasMore)

	page4, err := f.uc.GetMessages(ctx, thread.ID, "supplier-1", 4, 20)
	require.NoError(t, err)
	assert.Empty(t, page4.Messages)
	assert.False(t, page4.HasMore)
}

func TestGetUserThreadsAnnotated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _, err := f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-1", "product-1")
	require.NoError(t, err)
	second, _, err := f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-2", "")
	require.NoError(t, err)

	_, err = f.uc.SendMessage(ctx, first.ID, "supplier-1", "We restocked")
	require.NoError(t, err)

	threads, err := f.uc.GetUserThreads(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, threads, 2)

	// Latest activity first.
	assert.Equal(t, first.ID, threads[0].ID)
	assert.Equal(t, second.ID, threads[1].ID)

	require.NotNil(t, threads[0].LastMessage)
	assert.Equal(t, "We restocked", threads[0].LastMessage.Text)
	assert.Equal(t, "globex-foods", threads[0].LastMessage.SenderUsername)
	assert.Equal(t, 1, threads[0].UnreadCount)
	assert.Nil(t, threads[1].LastMessage)
}

func TestRateLimitedWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	thread, _, err := f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-1", "")
	require.NoError(t, err)

	f.limiter.deny = true

	_, _, err = f.uc.CreateOrGetThread(ctx, "buyer-1", "supplier-2", "")
	assert.True(t, apperrors.Is(err, apperrors.CodeTooManyRequests))

	_, err = f.uc.SendMessage(ctx, thread.ID, "buyer-1", "one more")
	assert.True(t, apperrors.Is(err, apperrors.CodeTooManyRequests))
}
