package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odontosimples/clinic-api/internal/model"
)

const patientColumns = `
	id, name, email, phone, date_of_birth, status, notes,
	created_at, updated_at
`

func (r *patientRepository) Create(ctx context.Context, p *model.Patient) error {
	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES (
			:id, :name, :email, :phone, :date_of_birth, :status, :notes,
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
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`

	var p model.Patient
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFoundOr(err, "patient")
	}
	return &p, nil
}

func (r *patientRepository) Update(ctx context.Context, p *model.Patient) error {
	query := `
		UPDATE patients
		SET name = :name,
			email = :email,
			phone = :phone,
			status = :status,
			notes = :notes,
			updated_at = :updated_at
		WHERE id = :id
	`
	p.UpdatedAt = time.Now()

	result, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFoundOr(fmt.Errorf("no rows updated"), "patient")
	}
	return nil
}

func (r *patientRepository) List(ctx context.Context, page model.Pagination) ([]*model.Patient, error) {
	limit := page.PageSize
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := 0
	if page.Page > 1 {
		offset = (page.Page - 1) * limit
	}

	query := `
		SELECT ` + patientColumns + `
		FROM patients
		ORDER BY name
		LIMIT $1 OFFSET $2
	`
	var patients []*model.Patient
	if err := r.db.SelectContext(ctx, &patients, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}
