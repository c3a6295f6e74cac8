package auth

import (
	"context"
	"strings"

	"github.com/odontosimples/clinic-api/internal/model"
	"github.com/odontosimples/clinic-api/internal/repository"
	"github.com/odontosimples/clinic-api/pkg/auth"
	apperrors "github.com/odontosimples/clinic-api/pkg/errors"
	"github.com/odontosimples/clinic-api/pkg/logger"
	"github.com/odontosimples/clinic-api/pkg/security"
)

// Service authenticates clinic staff and issues access tokens.
type Service struct {
	users  repository.UserRepository
	jwtSvc auth.JWTService
	hasher security.PasswordHasher
	logger *logger.Logger
}

func NewService(users repository.UserRepository, jwtSvc auth.JWTService, hasher security.PasswordHasher, log *logger.Logger) *Service {
	return &Service{
		users:  users,
		jwtSvc: jwtSvc,
		hasher: hasher,
		logger: log,
	}
}

// Login verifies credentials and returns a signed access token. Failed
// lookups and bad passwords answer identically so the endpoint does not
// leak which emails exist.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.Unauthorized(nil)
	}
	if !user.Active {
		return nil, apperrors.Unauthorized(nil)
	}
	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		s.logger.Warn("failed login attempt", "email", email)
		return nil, apperrors.Unauthorized(nil)
	}

	token, err := s.jwtSvc.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &model.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.jwtSvc.AccessExpiry().Seconds()),
		User:        user,
	}, nil
}

// Register creates a staff account with a hashed password.
func (s *Service) Register(ctx context.Context, name, email, password, role string) (*model.User, error) {
	switch role {
	case model.RoleAdmin, model.RoleReceptionist, model.RolePractitioner:
	default:
		return nil, apperrors.BadRequest("unknown role", nil)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.BadRequest("password does not meet requirements", err)
	}

	user := &model.User{
		Name:         strings.TrimSpace(name),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ValidateToken parses and verifies an access token.
func (s *Service) ValidateToken(token string) (*auth.Claims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}
