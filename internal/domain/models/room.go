package models

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	IsPublic  bool      `json:"isPublic" db:"is_public"`
	CreatorID uuid.UUID `json:"creatorId" db:"creator_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// MemberCount is filled from the live registry, never stored.
	MemberCount int `json:"memberCount" db:"-"`
}

func NewRoom(name string, isPublic bool, creatorID uuid.UUID) *Room {
	return &Room{
		ID:        uuid.New(),
		Name:      name,
		IsPublic:  isPublic,
		CreatorID: creatorID,
		CreatedAt: time.Now(),
	}
}
