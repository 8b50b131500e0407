package entity

// UserType is the account role on the platform. Every account is exactly
// one of the two; there is no dual-role account.
type UserType string

const (
	UserTypeBuyer    UserType = "buyer"
	UserTypeSupplier UserType = "supplier"
)

type User struct {
	ID       string   `firestore:"id" json:"id"`
	Username string   `firestore:"username" json:"username"`
	UserType UserType `firestore:"userType" json:"user_type"`
}
