package entity

import "time"

// Thread is a conversation between one buyer and one supplier, optionally
// scoped to a single product. ProductID is empty for a general inquiry.
// At most one thread exists per (buyer, supplier, product) and per
// (buyer, supplier) without a product.
type Thread struct {
	ID           string    `firestore:"id" json:"id"`
	BuyerID      string    `firestore:"buyerId" json:"buyer_id"`
	SupplierID   string    `firestore:"supplierId" json:"supplier_id"`
	ProductID    string    `firestore:"productId" json:"product_id,omitempty"`
	MessageCount int       `firestore:"messageCount" json:"-"`
	CreatedAt    time.Time `firestore:"createdAt" json:"created_at"`
	UpdatedAt    time.Time `firestore:"updatedAt" json:"updated_at"`
}

func (t *Thread) IsParticipant(userID string) bool {
	return t.BuyerID == userID || t.SupplierID == userID
}

// OtherParticipant returns the peer of userID. The caller must already
// know userID is a participant.
func (t *Thread) OtherParticipant(userID string) string {
	if t.BuyerID == userID {
		return t.SupplierID
	}
	return t.BuyerID
}
