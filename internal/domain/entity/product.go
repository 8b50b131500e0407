package entity

type Product struct {
	ID       string `firestore:"id" json:"id"`
	OwnerID  string `firestore:"ownerId" json:"owner_id"`
	Name     string `firestore:"name" json:"product_name"`
	IsActive bool   `firestore:"isActive" json:"is_active"`
}
