package entity

import "time"

// ReadState tracks one participant's position in one thread. Exactly two
// exist per thread, created together with it.
type ReadState struct {
	ThreadID    string     `firestore:"threadId" json:"thread_id"`
	UserID      string     `firestore:"userId" json:"user_id"`
	UnreadCount int        `firestore:"unreadCount" json:"unread_count"`
	LastReadAt  *time.Time `firestore:"lastReadAt" json:"last_read_at,omitempty"`
}
