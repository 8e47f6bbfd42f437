// README: Actor is the caller identity threaded through every trip operation.
package types

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Actor is resolved by the HTTP layer from a verified token. The core never
// looks identity up on its own.
type Actor struct {
	UserID ID
	Name   string
	Role   Role
}

func (a Actor) Anonymous() bool { return a.UserID == "" }

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsModerator reports whether the actor may finish or dismiss formed trips.
func (a Actor) IsModerator() bool { return a.Role == RoleModerator || a.Role == RoleAdmin }

// DisplayName is what ends up on the summary artifact.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return string(a.UserID)
}
