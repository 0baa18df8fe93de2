package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/shared"
)

const tenantStatusActive = "active"

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Authenticate validates email/password credentials. Users of inactive tenants are refused
// with shared.ErrTenantInactive after their password checks out.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.ErrorContext(ctx, "find user", slog.Any("error", err))
		}
		return User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return User{}, shared.ErrInvalidCredentials
	}
	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return User{}, err
	}
	if err := s.ensureTenantActive(ctx, user); err != nil {
		return User{}, err
	}
	if err := s.repo.TouchLogin(ctx, user.ID, s.now().UTC()); err != nil {
		s.logger.WarnContext(ctx, "touch login", slog.Any("error", err))
	}
	return user, nil
}

// ResolveClaims rebuilds the claims of a session user. The requested business unit is
// honoured when the user is a member of it; otherwise the first membership is used.
// Platform users carry no tenant and no business unit.
func (s *Service) ResolveClaims(ctx context.Context, userID, requestedBU uuid.UUID) (reqctx.Claims, User, []Membership, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return reqctx.Claims{}, User{}, nil, shared.ErrInvalidCredentials
		}
		return reqctx.Claims{}, User{}, nil, err
	}
	if !user.IsActive {
		return reqctx.Claims{}, User{}, nil, shared.ErrInvalidCredentials
	}
	claims := reqctx.Claims{UserID: user.ID, GlobalRole: user.GlobalRole}
	if !user.TenantID.Valid {
		return claims, user, []Membership{}, nil
	}
	if err := s.ensureTenantActive(ctx, user); err != nil {
		return reqctx.Claims{}, User{}, nil, err
	}
	claims.TenantID = user.TenantID.UUID

	memberships, err := s.repo.Memberships(ctx, user.ID)
	if err != nil {
		return reqctx.Claims{}, User{}, nil, fmt.Errorf("auth: memberships: %w", err)
	}
	if m, ok := pickMembership(memberships, requestedBU); ok {
		claims.BusinessUnitID = m.BusinessUnitID
		claims.Role = m.RoleName
	}
	if memberships == nil {
		memberships = []Membership{}
	}
	return claims, user, memberships, nil
}

func (s *Service) ensureTenantActive(ctx context.Context, user User) error {
	if !user.TenantID.Valid {
		return nil
	}
	status, err := s.repo.TenantStatus(ctx, user.TenantID.UUID)
	if err != nil {
		return fmt.Errorf("auth: tenant status: %w", err)
	}
	if status != tenantStatusActive {
		return fmt.Errorf("%w: tenant is %s", shared.ErrTenantInactive, status)
	}
	return nil
}

func pickMembership(memberships []Membership, requested uuid.UUID) (Membership, bool) {
	if len(memberships) == 0 {
		return Membership{}, false
	}
	for _, m := range memberships {
		if m.BusinessUnitID == requested {
			return m, true
		}
	}
	return memberships[0], true
}
