package domain

import "time"

// User is the directory's view of a platform account. The messaging core
// never writes users; identity, roles and presence are owned by the
// external directory collaborator.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	AvatarRef    string // opaque URL resolved by the platform's file storage
	Role         string
	Online       bool
	LastOnlineAt time.Time
}

// DisplayName joins the name parts the way the platform UI renders them.
func (u User) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
