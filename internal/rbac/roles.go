package rbac

// Role names. Keep these stable; they are carried in service tokens.
const (
	// RoleService is held by peer systems (voice delivery, the constituent app backend).
	RoleService = "service"
	// RoleAdmin is held by operators and passes every role check.
	RoleAdmin = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool { return role == RoleService || role == RoleAdmin }
