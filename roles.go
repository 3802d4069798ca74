package users

// UserRole is a closed enumeration of the roles a user can hold. Role names
// match the strings carried in token claims.
type UserRole string

const (
	// RoleAnonymous is an unauthenticated caller
	RoleAnonymous UserRole = "ANONYMOUS"
	// RoleAuthenticated is a regular signed-in user
	RoleAuthenticated UserRole = "AUTHENTICATED"
	// RoleManager can browse the user directory
	RoleManager UserRole = "MANAGER"
	// RoleAdmin can create, update, and delete users
	RoleAdmin UserRole = "ADMIN"
)

// RoleValidator defines the interface for role-based access control validation
type RoleValidator interface {
	// CanListUsers checks if the role can browse the user directory
	CanListUsers() bool

	// CanManageUsers checks if the role can create, read, update, and
	// delete individual user records
	CanManageUsers() bool

	// HasRole checks if the user has a specific role
	HasRole(role string) bool

	// IsAtLeast checks if the user's role is at least the minimum required role
	IsAtLeast(minRole UserRole) bool
}

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleAnonymous, RoleAuthenticated, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanListUsers checks if this role can browse the user directory
func (r UserRole) CanListUsers() bool {
	switch r {
	case RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanManageUsers checks if this role can mutate individual user records
func (r UserRole) CanManageUsers() bool {
	return r == RoleAdmin
}

var roleHierarchy = map[UserRole]int{
	RoleAnonymous:     0,
	RoleAuthenticated: 1,
	RoleManager:       2,
	RoleAdmin:         3,
}

// IsAtLeast checks if this role meets the minimum required level
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleAnonymous,
		RoleAuthenticated,
		RoleManager,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}
