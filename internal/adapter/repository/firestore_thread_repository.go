package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tradelink/internal/domain/entity"
	"tradelink/internal/domain/repository"
	apperrors "tradelink/pkg/errors"
)

const (
	threadsCollection      = "chat_threads"
	threadKeysCollection   = "chat_thread_keys"
	messagesSubcollection  = "messages"
	participantsCollection = "participants"
)

type FirestoreThreadRepository struct {
	client *firestore.Client
}

func NewFirestoreThreadRepository(client *firestore.Client) *FirestoreThreadRepository {
	return &FirestoreThreadRepository{client: client}
}

// threadKeyDoc pins the uniqueness key to a thread id. Creating it inside
// the same transaction as the thread serializes concurrent get-or-create
// calls for the same (buyer, supplier, product).
type threadKeyDoc struct {
	ThreadID string `firestore:"threadId"`
}

func (r *FirestoreThreadRepository) GetOrCreate(ctx context.Context, buyerID, supplierID, productID string) (*entity.Thread, bool, error) {
	keyRef := r.client.Collection(threadKeysCollection).Doc(threadKey(buyerID, supplierID, productID))

	var thread *entity.Thread
	var created bool

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		keySnap, err := tx.Get(keyRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		if keySnap != nil && keySnap.Exists() {
			var key threadKeyDoc
			if err := keySnap.DataTo(&key); err != nil {
				return err
			}
			threadSnap, err := tx.Get(r.client.Collection(threadsCollection).Doc(key.ThreadID))
			if err != nil {
				return err
			}
			var existing entity.Thread
			if err := threadSnap.DataTo(&existing); err != nil {
				return err
			}
			thread = &existing
			created = false
			return nil
		}

		now := time.Now()
		newThread := &entity.Thread{
			ID:         uuid.New().String(),
			BuyerID:    buyerID,
			SupplierID: supplierID,
			ProductID:  productID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		threadRef := r.client.Collection(threadsCollection).Doc(newThread.ID)

		if err := tx.Set(threadRef, newThread); err != nil {
			return err
		}
		if err := tx.Set(keyRef, threadKeyDoc{ThreadID: newThread.ID}); err != nil {
			return err
		}
		for _, userID := range []string{buyerID, supplierID} {
			state := &entity.ReadState{ThreadID: newThread.ID, UserID: userID}
			if err := tx.Set(threadRef.Collection(participantsCollection).Doc(userID), state); err != nil {
				return err
			}
		}

		thread = newThread
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get or create thread: %w", err)
	}

	return thread, created, nil
}

func (r *FirestoreThreadRepository) GetByID(ctx context.Context, id string) (*entity.Thread, error) {
	doc, err := r.client.Collection(threadsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperrors.NewThreadNotFound(err)
		}
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	var thread entity.Thread
	if err := doc.DataTo(&thread); err != nil {
		return nil, fmt.Errorf("failed to parse thread: %w", err)
	}
	return &thread, nil
}

func (r *FirestoreThreadRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Thread, error) {
	var threads []*entity.Thread

	for _, field := range []string{"buyerId", "supplierId"} {
		iter := r.client.Collection(threadsCollection).Where(field, "==", userID).Documents(ctx)
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to list threads: %w", err)
			}
			var thread entity.Thread
			if err := doc.DataTo(&thread); err != nil {
				return nil, fmt.Errorf("failed to parse thread: %w", err)
			}
			threads = append(threads, &thread)
		}
	}

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})
	return threads, nil
}

func (r *FirestoreThreadRepository) AppendMessage(ctx context.Context, msg *entity.Message, peerID string) error {
	threadRef := r.client.Collection(threadsCollection).Doc(msg.ThreadID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(threadRef); err != nil {
			return err
		}

		if err := tx.Set(threadRef.Collection(messagesSubcollection).Doc(msg.ID), msg); err != nil {
			return err
		}
		if err := tx.Update(threadRef, []firestore.Update{
			{Path: "updatedAt", Value: msg.CreatedAt},
			{Path: "messageCount", Value: firestore.Increment(1)},
		}); err != nil {
			return err
		}
		return tx.Update(threadRef.Collection(participantsCollection).Doc(peerID), []firestore.Update{
			{Path: "unreadCount", Value: firestore.Increment(1)},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return apperrors.NewThreadNotFound(err)
		}
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (r *FirestoreThreadRepository) ListMessages(ctx context.Context, threadID string, page, pageSize int) ([]*entity.Message, int, error) {
	thread, err := r.GetByID(ctx, threadID)
	if err != nil {
		return nil, 0, err
	}
	total := thread.MessageCount

	iter := r.client.Collection(threadsCollection).Doc(threadID).
		Collection(messagesSubcollection).
		OrderBy("createdAt", firestore.Desc).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Documents(ctx)

	var newestFirst []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list messages: %w", err)
		}
		var msg entity.Message
		if err := doc.DataTo(&msg); err != nil {
			return nil, 0, fmt.Errorf("failed to parse message: %w", err)
		}
		newestFirst = append(newestFirst, &msg)
	}

	// The query walks newest to oldest; the page is served oldest first.
	msgs := make([]*entity.Message, len(newestFirst))
	for i, m := range newestFirst {
		msgs[len(newestFirst)-1-i] = m
	}
	return msgs, total, nil
}

func (r *FirestoreThreadRepository) LastMessage(ctx context.Context, threadID string) (*entity.Message, error) {
	iter := r.client.Collection(threadsCollection).Doc(threadID).
		Collection(messagesSubcollection).
		OrderBy("createdAt", firestore.Desc).
		Limit(1).
		Documents(ctx)

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last message: %w", err)
	}

	var msg entity.Message
	if err := doc.DataTo(&msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

func (r *FirestoreThreadRepository) MarkRead(ctx context.Context, threadID, userID string, at time.Time) error {
	ref := r.client.Collection(threadsCollection).Doc(threadID).
		Collection(participantsCollection).Doc(userID)

	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "unreadCount", Value: 0},
		{Path: "lastReadAt", Value: at},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return apperrors.NewThreadNotFound(err)
		}
		return fmt.Errorf("failed to mark thread read: %w", err)
	}
	return nil
}

func (r *FirestoreThreadRepository) TotalUnread(ctx context.Context, userID string) (int, error) {
	iter := r.client.CollectionGroup(participantsCollection).
		Where("userId", "==", userID).
		Documents(ctx)

	total := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to sum unread counts: %w", err)
		}
		var state entity.ReadState
		if err := doc.DataTo(&state); err != nil {
			return 0, fmt.Errorf("failed to parse read state: %w", err)
		}
		total += state.UnreadCount
	}
	return total, nil
}

func (r *FirestoreThreadRepository) ThreadUnread(ctx context.Context, threadID, userID string) (int, error) {
	doc, err := r.client.Collection(threadsCollection).Doc(threadID).
		Collection(participantsCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, apperrors.NewThreadNotFound(err)
		}
		return 0, fmt.Errorf("failed to get read state: %w", err)
	}

	var state entity.ReadState
	if err := doc.DataTo(&state); err != nil {
		return 0, fmt.Errorf("failed to parse read state: %w", err)
	}
	return state.UnreadCount, nil
}

var _ repository.ThreadRepository = (*FirestoreThreadRepository)(nil)
