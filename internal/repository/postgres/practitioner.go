package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odontosimples/clinic-api/internal/model"
)

const practitionerColumns = `
	id, name, license_number, license_state, specialties, email, phone,
	work_start, work_end, work_days, slot_minutes, status,
	created_at, updated_at
`

func (r *practitionerRepository) Create(ctx context.Context, p *model.Practitioner) error {
	query := `
		INSERT INTO practitioners (` + practitionerColumns + `)
		VALUES (
			:id, :name, :license_number, :license_state, :specialties, :email, :phone,
			:work_start, :work_end, :work_days, :slot_minutes, :status,
			:created_at, :updated_at
		)
	`
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
		p.UpdatedAt = p.CreatedAt
	}

	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("failed to create practitioner: %w", err)
	}
	return nil
}

func (r *practitionerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Practitioner, error) {
	query := `SELECT ` + practitionerColumns + ` FROM practitioners WHERE id = $1`

	var p model.Practitioner
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFoundOr(err, "practitioner")
	}
	return &p, nil
}

func (r *practitionerRepository) Update(ctx context.Context, p *model.Practitioner) error {
	query := `
		UPDATE practitioners
		SET name = :name,
			specialties = :specialties,
			email = :email,
			phone = :phone,
			work_start = :work_start,
			work_end = :work_end,
			work_days = :work_days,
			slot_minutes = :slot_minutes,
			status = :status,
			updated_at = :updated_at
		WHERE id = :id
	`
	p.UpdatedAt = time.Now()

	result, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return fmt.Errorf("failed to update practitioner: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFoundOr(fmt.Errorf("no rows updated"), "practitioner")
	}
	return nil
}

func (r *practitionerRepository) List(ctx context.Context) ([]*model.Practitioner, error) {
	query := `SELECT ` + practitionerColumns + ` FROM practitioners ORDER BY name`

	var practitioners []*model.Practitioner
	if err := r.db.SelectContext(ctx, &practitioners, query); err != nil {
		return nil, fmt.Errorf("failed to list practitioners: %w", err)
	}
	return practitioners, nil
}
