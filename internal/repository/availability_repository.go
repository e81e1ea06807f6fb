package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PgAvailabilityRepository управляет правилами доступности в базе данных
type PgAvailabilityRepository struct {
	*base.Repository
}

// NewAvailabilityRepository создаёт новый репозиторий
func NewAvailabilityRepository(db base.DBTX) *PgAvailabilityRepository {
	return &PgAvailabilityRepository{Repository: base.NewRepository(db)}
}

const availabilityColumns = `id, provider_id, weekdays, start_minute, end_minute, timezone, created_at, updated_at`

// Create создаёт новое правило доступности
func (r *PgAvailabilityRepository) Create(ctx context.Context, rule *model.AvailabilityRule) error {
	query := `
		INSERT INTO availability_rules (id, provider_id, weekdays, start_minute, end_minute, timezone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.QueryRow(
		ctx,
		query,
		rule.ID,
		rule.ProviderID,
		weekdaysToInts(rule.Weekdays),
		rule.StartMinute,
		rule.EndMinute,
		rule.Timezone,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create availability rule: %w", err)
	}

	return nil
}

// GetByID получает правило по ID
func (r *PgAvailabilityRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AvailabilityRule, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_rules WHERE id = $1`

	rule, err := scanAvailabilityRule(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, &model.NotFoundError{Entity: "availability rule", ID: id.String()}
		}
		return nil, fmt.Errorf("get availability rule by id: %w", err)
	}

	return rule, nil
}

// ListByProvider получает все правила провайдера
func (r *PgAvailabilityRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.AvailabilityRule, error) {
	query := `
		SELECT ` + availabilityColumns + `
		FROM availability_rules
		WHERE provider_id = $1
		ORDER BY start_minute, id
	`

	rows, err := r.Query(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("list availability rules by provider: %w", err)
	}
	defer rows.Close()

	var rules []*model.AvailabilityRule
	for rows.Next() {
		rule, err := scanAvailabilityRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan availability rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// Delete удаляет правило
func (r *PgAvailabilityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	affected, err := r.ExecAffected(ctx, `DELETE FROM availability_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete availability rule: %w", err)
	}

	if affected == 0 {
		return &model.NotFoundError{Entity: "availability rule", ID: id.String()}
	}

	return nil
}

func scanAvailabilityRule(row pgx.Row) (*model.AvailabilityRule, error) {
	rule := &model.AvailabilityRule{}
	var weekdays []int32
	err := row.Scan(
		&rule.ID,
		&rule.ProviderID,
		&weekdays,
		&rule.StartMinute,
		&rule.EndMinute,
		&rule.Timezone,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.Weekdays = make([]time.Weekday, len(weekdays))
	for i, d := range weekdays {
		rule.Weekdays[i] = time.Weekday(d)
	}
	return rule, nil
}

func weekdaysToInts(days []time.Weekday) []int32 {
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}
