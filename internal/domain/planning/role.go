package planning

// ActorRole is the role an actor presents to the planning operations.
// Authentication and role assignment live outside this module; roles arrive
// as plain values alongside the actor ID.
type ActorRole string

const (
	RoleSalesRep ActorRole = "SALES_REP"
	RoleManager  ActorRole = "MANAGER"
	RoleAdmin    ActorRole = "ADMIN"
)

// IsValid checks if the role is a known ActorRole
func (r ActorRole) IsValid() bool {
	switch r {
	case RoleSalesRep, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// IsElevated checks whether the role may approve or reject forecasts
func (r ActorRole) IsElevated() bool {
	return r == RoleManager || r == RoleAdmin
}
