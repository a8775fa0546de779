package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

func NewUser(name string) *User {
	return &User{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now(),
	}
}
