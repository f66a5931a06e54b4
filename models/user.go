package models

import "time"

// User is the profile document: the application's durable record of a user,
// keyed by the identity provider's uid. PhotoURL empty means the field is
// absent on the wire (omitempty), which is how photo removal is represented.
type User struct {
	ID          string    `bson:"_id" json:"id"`
	DisplayName string    `bson:"displayName" json:"displayName"`
	PhotoURL    string    `bson:"photoUrl,omitempty" json:"photoUrl,omitempty"`
	PhoneNumber string    `bson:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`
	Email       string    `bson:"email" json:"email"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

const DefaultDisplayName = "Usuário"

// Name returns the display name with the app-wide fallback applied.
func (u *User) Name() string {
	if u == nil || u.DisplayName == "" {
		return DefaultDisplayName
	}
	return u.DisplayName
}
