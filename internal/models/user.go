package models

// Role is the caller's permission level, carried in the verified token
type Role string

const (
	RoleViewer  Role = "viewer"
	RoleMember  Role = "member"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer:  0,
	RoleMember:  1,
	RoleManager: 2,
	RoleAdmin:   3,
}

// AtLeast reports whether r grants at least the permissions of min.
// Unknown roles rank below viewer.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

// User is the authenticated principal attached to every request
type User struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     Role   `json:"role"`
}

// TokenClaims are the claims extracted from a verified JWT
type TokenClaims struct {
	Sub      string
	ClientID string
	Role     string
	Name     string
	Email    string
	Iss      string
	Aud      string
	Exp      int64
	Iat      int64
}
