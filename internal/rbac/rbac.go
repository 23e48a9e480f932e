package rbac

type Role string
type Action string

const (
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
	RoleOwner    Role = "owner"
)

const (
	ActionRead   Action = "read"
	ActionScan   Action = "scan"
	ActionManage Action = "manage"
	ActionAdmin  Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleAdmin:
		return action == ActionRead || action == ActionScan || action == ActionManage
	case RoleOperator:
		return action == ActionRead || action == ActionScan
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleOperator, RoleAdmin, RoleOwner:
		return Role(role)
	default:
		return RoleOperator
	}
}

// ScopedToTests reports whether a role's scan rights are limited to its
// authorized-test set. Admins and owners scan any test.
func ScopedToTests(role Role) bool {
	return role == RoleOperator
}
