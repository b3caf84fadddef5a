package entity

import "time"

// User represents an account row in the `users` table.
// RefreshToken holds the single active refresh token; empty means no session.
type User struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	RefreshToken string    `db:"refresh_token"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Claims is the identity payload embedded in access and refresh tokens.
type Claims struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Claims projects the user into its token identity.
func (u *User) Claims() Claims {
	return Claims{UserID: u.ID, Name: u.Name, Email: u.Email}
}
