package model

import "time"

type Patient struct {
	Base
	Name        string     `db:"name" json:"name"`
	Email       string     `db:"email" json:"email,omitempty"`
	Phone       string     `db:"phone" json:"phone"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Status      string     `db:"status" json:"status"`
	Notes       string     `db:"notes" json:"notes,omitempty"`
}

type CreatePatientRequest struct {
	Name        string     `json:"name" binding:"required,min=2,max=100"`
	Email       string     `json:"email" binding:"omitempty,email"`
	Phone       string     `json:"phone" binding:"required"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Notes       string     `json:"notes" binding:"max=1000"`
}

type UpdatePatientRequest struct {
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	Phone  *string `json:"phone"`
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}
