package model

import "time"

const UsersCollection = "users"

// User is the presence document kept under users/{userId}.
type User struct {
	UserID           string  `json:"userId"`
	DisplayName      string  `json:"displayName"`
	Email            string  `json:"email,omitempty"`
	AvatarURL        string  `json:"avatarUrl"`
	CurrentTaskID    *string `json:"currentTaskId"`
	CurrentTaskTitle *string `json:"currentTaskTitle"`
	LastActive       int64   `json:"lastActive"`
}

// Account is the server-side credential record behind an identity.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Identity is a signed-in principal as reported by the auth service.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}
