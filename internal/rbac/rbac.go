package rbac

type Role string
type Action string

const (
	RoleUser     Role = "user"
	RoleCliente  Role = "cliente"
	RoleAbogados Role = "rc_abogados"
	RoleAdmin    Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionUpload   Action = "upload"
	ActionReview   Action = "review"
	ActionShare    Action = "share"
	ActionReindex  Action = "reindex"
	ActionAdmin    Action = "admin"
)

// Can answers whether a role may perform an action. Cliente accounts are
// additionally scoped to their granted clients; that check lives in the
// service layer, not here.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleAbogados:
		return action == ActionRead || action == ActionUpload || action == ActionReview ||
			action == ActionShare || action == ActionReindex || action == ActionAdmin
	case RoleUser:
		return action == ActionRead || action == ActionUpload
	case RoleCliente:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleCliente, RoleAbogados, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}
