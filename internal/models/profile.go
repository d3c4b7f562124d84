package models

// Role values owned by the identity subsystem.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// Profile is the read-only view of a platform user.
type Profile struct {
	ID        string  `db:"id" json:"id"`
	Role      string  `db:"role" json:"role"`
	FirstName string  `db:"first_name" json:"first_name"`
	LastName  string  `db:"last_name" json:"last_name"`
	AvatarURL *string `db:"avatar_url" json:"avatar_url,omitempty"`
}

// Sender projects the profile into message sender identity.
func (p Profile) Sender() *Sender {
	return &Sender{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName, AvatarURL: p.AvatarURL}
}
