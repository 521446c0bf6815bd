package model

import "time"

// PrincipalKind tells the two session-owning entity kinds apart. It is
// carried in access-token claims and on every refresh-token row.
type PrincipalKind string

const (
	KindUser     PrincipalKind = "user"
	KindCustomer PrincipalKind = "customer"
)

// Valid reports whether k is one of the known kinds.
func (k PrincipalKind) Valid() bool {
	return k == KindUser || k == KindCustomer
}

// Roles. Web-panel users carry one of the staff roles; customers always
// carry RoleCustomer.
const (
	RoleAdmin         = "ADMIN"
	RoleStoreManager  = "STORE_MANAGER"
	RoleStoreOperator = "STORE_OPERATOR"
	RoleCustomer      = "CUSTOMER"
)

// IsStaffRole reports whether role can be assigned to a web-panel user.
func IsStaffRole(role string) bool {
	switch role {
	case RoleAdmin, RoleStoreManager, RoleStoreOperator:
		return true
	}
	return false
}

// User is a web-panel account, row of the `users` table.
type User struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	StoreID      *string   `db:"store_id"` // nullable
	Active       bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Customer is a mobile app account, row of the `customers` table.
type Customer struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Phone        *string   `db:"phone"`
	Active       bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Identity is the normalized summary of an authenticated principal that
// protected handlers work with.
type Identity struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Email   string        `json:"email"`
	Role    string        `json:"role"`
	StoreID string        `json:"store_id,omitempty"`
	Kind    PrincipalKind `json:"type"`
}

// Identity summarizes the user.
func (u User) Identity() Identity {
	id := Identity{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Kind: KindUser}
	if u.StoreID != nil {
		id.StoreID = *u.StoreID
	}
	return id
}

// Identity summarizes the customer.
func (c Customer) Identity() Identity {
	return Identity{ID: c.ID, Name: c.Name, Email: c.Email, Role: RoleCustomer, Kind: KindCustomer}
}
