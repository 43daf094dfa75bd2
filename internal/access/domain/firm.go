package domain

import "time"

type Role string

const (
	RoleFirmAdmin  Role = "firm_admin"
	RoleAccountant Role = "accountant"
	RoleClient     Role = "client"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleFirmAdmin, RoleAccountant, RoleClient:
		return true
	}
	return false
}

type Firm struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Membership links a user to a firm with a role. A user has at most one
// membership per firm.
type Membership struct {
	FirmID    string
	UserID    string
	Role      Role
	CreatedAt time.Time
}
