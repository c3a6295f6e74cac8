package practitioner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/odontosimples/clinic-api/internal/model"
	"github.com/odontosimples/clinic-api/internal/repository"
	apperrors "github.com/odontosimples/clinic-api/pkg/errors"
	"github.com/odontosimples/clinic-api/pkg/logger"
)

const (
	cacheTTL     = 5 * time.Minute
	cacheCleanup = 10 * time.Minute
)

// Service manages practitioner records. Reads go through a short-lived
// in-process cache because practitioner rows are read on every booking
// but change rarely; writes invalidate the cached entry.
type Service struct {
	repo   repository.PractitionerRepository
	cache  *gocache.Cache
	logger *logger.Logger
}

func NewService(repo repository.PractitionerRepository, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  gocache.New(cacheTTL, cacheCleanup),
		logger: log,
	}
}

func cacheKey(id uuid.UUID) string {
	return "practitioner:" + id.String()
}

func (s *Service) Create(ctx context.Context, req *model.CreatePractitionerRequest) (*model.Practitioner, error) {
	p := &model.Practitioner{
		Name:          req.Name,
		LicenseNumber: req.LicenseNumber,
		LicenseState:  req.LicenseState,
		Specialties:   req.Specialties,
		Email:         req.Email,
		Phone:         req.Phone,
		WorkStart:     req.WorkStart,
		WorkEnd:       req.WorkEnd,
		WorkDays:      req.WorkDays,
		SlotMinutes:   req.SlotMinutes,
		Status:        "active",
	}
	if err := validateWorkingWindow(p); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create practitioner: %w", err)
	}
	return p, nil
}

// validateWorkingWindow rejects configurations that would make the
// practitioner unbookable: no workday at all, or a window that does not
// parse on any configured day.
func validateWorkingWindow(p *model.Practitioner) error {
	probe := time.Now()
	for i := 0; i < 7; i++ {
		if p.WorksOn(probe.Weekday()) {
			if _, _, ok := p.WindowFor(probe); !ok {
				return apperrors.BadRequest("invalid working window configuration", nil)
			}
			return nil
		}
		probe = probe.AddDate(0, 0, 1)
	}
	return apperrors.BadRequest("practitioner has no working days", nil)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Practitioner, error) {
	if cached, ok := s.cache.Get(cacheKey(id)); ok {
		if p, ok := cached.(*model.Practitioner); ok {
			return p, nil
		}
	}

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey(id), p, gocache.DefaultExpiration)
	return p, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdatePractitionerRequest) (*model.Practitioner, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Specialties != nil {
		p.Specialties = *req.Specialties
	}
	if req.Email != nil {
		p.Email = *req.Email
	}
	if req.Phone != nil {
		p.Phone = *req.Phone
	}
	if req.WorkStart != nil {
		p.WorkStart = *req.WorkStart
	}
	if req.WorkEnd != nil {
		p.WorkEnd = *req.WorkEnd
	}
	if req.WorkDays != nil {
		p.WorkDays = *req.WorkDays
	}
	if req.SlotMinutes != nil {
		p.SlotMinutes = *req.SlotMinutes
	}
	if req.Status != nil {
		p.Status = *req.Status
	}

	if req.WorkStart != nil || req.WorkEnd != nil || req.WorkDays != nil {
		if err := validateWorkingWindow(p); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update practitioner: %w", err)
	}
	s.cache.Delete(cacheKey(id))
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]*model.Practitioner, error) {
	practitioners, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list practitioners: %w", err)
	}
	return practitioners, nil
}

// Deactivate takes a practitioner out of the booking pool without
// touching their historical appointments.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	p.Status = "inactive"
	if err := s.repo.Update(ctx, p); err != nil {
		return fmt.Errorf("failed to deactivate practitioner: %w", err)
	}
	s.cache.Delete(cacheKey(id))
	return nil
}
