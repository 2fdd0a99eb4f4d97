package auth

import "time"

// User is the stored credential record.
// PasswordHash is tagged `json:"-"` so it can never leak through encoding,
// but handlers still only ever return PublicUser.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PublicUser is the representation of a User returned to clients.
// It has no password hash field at all.
type PublicUser struct {
	ID        string    `json:"id" example:"5f0c9a4e-3a52-4c1e-9d59-2f1a6b1c7e11"`
	Name      string    `json:"name" example:"A"`
	Email     string    `json:"email" example:"a@x.com"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips the credential fields from u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}
