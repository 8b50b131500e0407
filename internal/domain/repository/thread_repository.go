package repository

import (
	"context"
	"time"

	"tradelink/internal/domain/entity"
)

// ThreadRepository is the durable store for threads, messages and
// per-participant read state. Implementations must keep the invariants:
// one thread per (buyer, supplier, product) and per (buyer, supplier)
// without product; exactly two read-state rows per thread, created with
// it; AppendMessage persists the message, bumps the thread's updated_at
// and increments the peer's unread count as one atomic unit.
type ThreadRepository interface {
	// GetOrCreate returns the existing thread for the key, or creates it
	// together with both read-state rows. The bool reports creation.
	GetOrCreate(ctx context.Context, buyerID, supplierID, productID string) (*entity.Thread, bool, error)

	GetByID(ctx context.Context, id string) (*entity.Thread, error)

	// ListByUser returns the user's threads ordered by last activity,
	// most recent first.
	ListByUser(ctx context.Context, userID string) ([]*entity.Thread, error)

	// AppendMessage stores msg and atomically updates the thread and the
	// peer's unread counter. peerID is the participant who did not send.
	AppendMessage(ctx context.Context, msg *entity.Message, peerID string) error

	// ListMessages returns one page of the thread's messages together
	// with the total count. Page 1 holds the newest pageSize messages;
	// within a page messages are ordered oldest first.
	ListMessages(ctx context.Context, threadID string, page, pageSize int) ([]*entity.Message, int, error)

	// LastMessage returns the most recent message, or nil if the thread
	// has none.
	LastMessage(ctx context.Context, threadID string) (*entity.Message, error)

	// MarkRead zeroes the user's unread counter for the thread and
	// records at as the last-read time.
	MarkRead(ctx context.Context, threadID, userID string, at time.Time) error

	// TotalUnread sums the user's unread counters across all threads.
	TotalUnread(ctx context.Context, userID string) (int, error)

	ThreadUnread(ctx context.Context, threadID, userID string) (int, error)
}
