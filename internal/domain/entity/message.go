package entity

import "time"

type Message struct {
	ID        string    `firestore:"id" json:"id"`
	ThreadID  string    `firestore:"threadId" json:"thread_id"`
	SenderID  string    `firestore:"senderId" json:"sender_id"`
	Text      string    `firestore:"text" json:"text"`
	CreatedAt time.Time `firestore:"createdAt" json:"created_at"`
}
