package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository/base"
	"github.com/google/uuid"
)

type PgResourceRepository struct {
	*base.Repository
}

func NewResourceRepository(db base.DBTX) *PgResourceRepository {
	return &PgResourceRepository{Repository: base.NewRepository(db)}
}

// Create создаёт новый ресурс (класс или услугу)
func (r *PgResourceRepository) Create(ctx context.Context, resource *model.Resource) error {
	query := `
		INSERT INTO resources (id, kind, provider_id, name, capacity, reserved, requires_approval, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.QueryRow(
		ctx, query,
		resource.ID,
		resource.Kind,
		resource.ProviderID,
		resource.Name,
		resource.Capacity,
		resource.Reserved,
		resource.RequiresApproval,
		resource.Timezone,
	).Scan(&resource.CreatedAt)

	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	return nil
}

// GetByID получает ресурс по ID
func (r *PgResourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Resource, error) {
	query := `
		SELECT id, kind, provider_id, name, capacity, reserved, requires_approval, timezone, created_at
		FROM resources
		WHERE id = $1
	`

	var resource model.Resource
	err := r.QueryRow(ctx, query, id).Scan(
		&resource.ID,
		&resource.Kind,
		&resource.ProviderID,
		&resource.Name,
		&resource.Capacity,
		&resource.Reserved,
		&resource.RequiresApproval,
		&resource.Timezone,
		&resource.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, &model.NotFoundError{Entity: "resource", ID: id.String()}
		}
		return nil, fmt.Errorf("get resource by id: %w", err)
	}

	return &resource, nil
}

// AdjustReserved атомарно меняет счётчик занятых мест.
// Условие в WHERE работает как compare-and-swap: выход за [0, capacity] не пройдёт.
func (r *PgResourceRepository) AdjustReserved(ctx context.Context, id uuid.UUID, delta int) error {
	query := `
		UPDATE resources
		SET reserved = reserved + $2
		WHERE id = $1 AND reserved + $2 >= 0 AND reserved + $2 <= capacity
	`

	affected, err := r.ExecAffected(ctx, query, id, delta)
	if err != nil {
		return fmt.Errorf("adjust reserved capacity: %w", err)
	}

	if affected == 0 {
		resource, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return &model.CapacityExceededError{
			Entity:    "resource",
			ID:        id.String(),
			Capacity:  resource.Capacity,
			Reserved:  resource.Reserved,
			Requested: delta,
		}
	}

	return nil
}
