package models

import "time"

// UserKind is the type tag stored in votes.voter_type for users.
const UserKind = "User"

type User struct {
	ID       int64  `gorm:"primaryKey" json:"id"`
	Username string `gorm:"unique;not null" json:"username"`
	Bio      string `json:"bio"`
	Avatar   string `json:"avatar"` // Stores avatar ID (1-6) or URL

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u User) Ref() Ref {
	return Ref{Type: UserKind, ID: u.ID}
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Bio      string `json:"bio"`
	Avatar   string `json:"avatar"`
}

type AuthResponse struct {
	Token   string `json:"token"`
	User    User   `json:"user"`
	Message string `json:"message"`
}
