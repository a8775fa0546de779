package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/S4tyendra/public-vc/internal/domain/models"
)

type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetPublic(ctx context.Context) ([]*models.Room, error)
}

type roomRepo struct {
	db *sqlx.DB
}

func NewRoomRepo(db *sqlx.DB) RoomRepository {
	return &roomRepo{db: db}
}

func (r *roomRepo) Create(ctx context.Context, room *models.Room) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO rooms (id, name, is_public, creator_id, created_at) VALUES ($1, $2, $3, $4, $5)",
		room.ID,
		room.Name,
		room.IsPublic,
		room.CreatorID,
		room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	return nil
}

func (r *roomRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room

	err := r.db.GetContext(ctx, &room, "SELECT id, name, is_public, creator_id, created_at FROM rooms WHERE id = $1", id)
	if err != nil {
		return nil, err
	}

	return &room, nil
}

func (r *roomRepo) GetPublic(ctx context.Context) ([]*models.Room, error) {
	var rooms []*models.Room

	query := `
		SELECT id, name, is_public, creator_id, created_at
		FROM rooms
		WHERE is_public = true
		ORDER BY created_at
	`

	err := r.db.SelectContext(ctx, &rooms, query)
	if err != nil {
		return nil, err
	}

	return rooms, nil
}
