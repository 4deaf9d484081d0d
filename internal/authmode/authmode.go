// Package authmode holds the three-state switch deciding which login paths
// are accepted: Galette only, local password only, or both.
package authmode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/repository"
)

type Mode string

const (
	ModeExternal Mode = "oauth"
	ModeLocal    Mode = "backup"
	ModeBoth     Mode = "both"
)

const OptionName = "lemur_auth_mode"

var ErrLocalLoginDisabled = errors.New("la connexion par mot de passe est désactivée, utilisez la connexion Galette")

// Parse coerces raw into a valid mode. Anything unknown is local-only.
func Parse(raw string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeExternal:
		return ModeExternal
	case ModeBoth:
		return ModeBoth
	default:
		return ModeLocal
	}
}

type OptionStore interface {
	GetOption(ctx context.Context, name string) (string, error)
	SetOption(ctx context.Context, name string, value string) error
}

type UserFinder interface {
	FindByLogin(ctx context.Context, login string) (models.User, error)
}

type Switch struct {
	options           OptionStore
	users             UserFinder
	externalAvailable bool
	log               zerolog.Logger
}

func NewSwitch(options OptionStore, users UserFinder, externalAvailable bool, log zerolog.Logger) *Switch {
	return &Switch{
		options:           options,
		users:             users,
		externalAvailable: externalAvailable,
		log:               log,
	}
}

// Mode returns the effective mode. Without a configured identity provider, or
// before an operator picks a mode, the service is local-only.
func (s *Switch) Mode(ctx context.Context) Mode {
	if !s.externalAvailable {
		return ModeLocal
	}
	raw, err := s.options.GetOption(ctx, OptionName)
	if err != nil {
		if !errors.Is(err, repository.ErrOptionNotFound) {
			s.log.Warn().Err(err).Msg("read auth mode failed")
		}
		return ModeLocal
	}
	return Parse(raw)
}

// SetMode stores the coerced value and returns it.
func (s *Switch) SetMode(ctx context.Context, raw string) (Mode, error) {
	mode := Parse(raw)
	if err := s.options.SetOption(ctx, OptionName, string(mode)); err != nil {
		return "", fmt.Errorf("store auth mode: %w", err)
	}
	return mode, nil
}

func (s *Switch) AllowsExternal(ctx context.Context) bool {
	return s.Mode(ctx) != ModeLocal
}

// AuthenticateLocal filters a local password attempt before credentials are
// checked. Administrators may always log in locally; unknown logins fall
// through to the regular credential check.
func (s *Switch) AuthenticateLocal(ctx context.Context, login string) error {
	if s.Mode(ctx) != ModeExternal {
		return nil
	}
	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if capability.IsAdministrator(user.Roles) {
		return nil
	}
	return ErrLocalLoginDisabled
}
