package account

import "time"

// Role distinguishes parent accounts from the child jars they own.
type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

// Account represents a parent or a child savings jar. Parents authenticate
// with a phone number, children with their jar PIN. Balances are kept in
// satoshis.
type Account struct {
	ID          string    `json:"id" db:"id"`
	Role        Role      `json:"role" db:"role"`
	ParentID    string    `json:"parentId,omitempty" db:"parent_id"`
	Name        string    `json:"name" db:"name"`
	PhoneNumber string    `json:"phoneNumber,omitempty" db:"phone_number"`
	Age         int       `json:"age,omitempty" db:"age"`
	JarID       string    `json:"jarId,omitempty" db:"jar_id"`
	PINHash     string    `json:"-" db:"pin_hash"`
	Balance     int64     `json:"balance" db:"balance"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// IsParent reports whether the account may manage child jars.
func (a Account) IsParent() bool { return a.Role == RoleParent }
