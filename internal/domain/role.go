package domain

type Role int

const (
	RoleUnset Role = iota
	RoleBroadcaster
)

func (r Role) String() string {
	switch r {
	case RoleBroadcaster:
		return "broadcaster"
	default:
		return "unset"
	}
}
