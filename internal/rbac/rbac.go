package rbac

type Role string
type Action string

const (
	RoleDirector  Role = "director"
	RoleAdmin     Role = "administrador"
	RoleTeacher   Role = "maestro"
	RoleContact   Role = "timoteo"
	RoleLogistics Role = "logistica"
	RoleNone      Role = ""
)

const (
	ActionPanel      Action = "panel"
	ActionRecordCall Action = "record_call"
	ActionAttendance Action = "attendance"
	ActionReactivate Action = "reactivate"
	ActionSearch     Action = "search"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleDirector, RoleAdmin:
		return action == ActionSearch || action == ActionReactivate
	case RoleContact, RoleTeacher:
		return true
	case RoleLogistics:
		return action == ActionSearch
	default:
		return false
	}
}

// Normalize accepts the English aliases used by older tokens.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleDirector, RoleAdmin, RoleTeacher, RoleContact, RoleLogistics:
		return Role(role)
	}
	switch role {
	case "admin", "administrator":
		return RoleAdmin
	case "teacher":
		return RoleTeacher
	case "contact":
		return RoleContact
	case "logistics":
		return RoleLogistics
	default:
		return RoleNone
	}
}
