package models

// Role is the part a user plays in a support conversation.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
)

// User is a platform account as seen by the chat service.
type User struct {
	ID          string `db:"id" json:"id"`
	DisplayName string `db:"display_name" json:"displayName"`
	Role        Role   `db:"role" json:"role"`
	IsActive    bool   `db:"is_active" json:"isActive"`
}

// UserSummary is the display identity attached to listings.
type UserSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Summary returns the display identity of u.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, DisplayName: u.DisplayName}
}
