package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
)

type AccountStore interface {
	UpdateStatus(ctx context.Context, id int64, status models.UserStatus) error
	AddRole(ctx context.Context, userID int64, role string) error
}

type SessionCloser interface {
	Destroy(ctx context.Context, userID int64) error
}

// AccountService holds the operator actions on accounts.
type AccountService struct {
	accounts AccountStore
	sessions SessionCloser
	log      zerolog.Logger
}

func NewAccountService(accounts AccountStore, sessions SessionCloser, log zerolog.Logger) *AccountService {
	return &AccountService{accounts: accounts, sessions: sessions, log: log}
}

// Suspend blocks the account and closes its member session. Host cookies
// already issued stop resolving because Authenticate rejects inactive users.
func (s *AccountService) Suspend(ctx context.Context, userID int64) error {
	if err := s.accounts.UpdateStatus(ctx, userID, models.UserStatusSuspended); err != nil {
		return fmt.Errorf("suspend user %d: %w", userID, err)
	}
	if err := s.sessions.Destroy(ctx, userID); err != nil {
		return fmt.Errorf("destroy member session: %w", err)
	}
	s.log.Info().Int64("user_id", userID).Msg("account suspended")
	return nil
}

func (s *AccountService) Reactivate(ctx context.Context, userID int64) error {
	if err := s.accounts.UpdateStatus(ctx, userID, models.UserStatusActive); err != nil {
		return fmt.Errorf("reactivate user %d: %w", userID, err)
	}
	s.log.Info().Int64("user_id", userID).Msg("account reactivated")
	return nil
}

// GrantAdministrator adds the administrator role next to any club role.
func (s *AccountService) GrantAdministrator(ctx context.Context, userID int64) error {
	if err := s.accounts.AddRole(ctx, userID, string(capability.RoleAdministrator)); err != nil {
		return fmt.Errorf("grant administrator to %d: %w", userID, err)
	}
	s.log.Info().Int64("user_id", userID).Msg("administrator role granted")
	return nil
}
