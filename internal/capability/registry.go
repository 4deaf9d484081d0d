package capability

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
)

// RoleStore is the slice of the identity store the registry needs.
type RoleStore interface {
	RoleExists(ctx context.Context, role Role) (bool, error)
	CreateRole(ctx context.Context, role Role, displayName string, caps []Capability) error
	RoleHasCapability(ctx context.Context, role Role, capability Capability) (bool, error)
	GrantCapability(ctx context.Context, role Role, capability Capability) error
	CapabilitiesForRoles(ctx context.Context, roles []string) ([]Capability, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id int64) (models.User, error)
}

type Registry struct {
	roles RoleStore
	log   zerolog.Logger
}

func NewRegistry(roles RoleStore, log zerolog.Logger) *Registry {
	return &Registry{roles: roles, log: log}
}

// RegisterRoles creates the club roles that do not exist yet. Existing roles
// keep whatever capabilities they currently carry.
func (r *Registry) RegisterRoles(ctx context.Context) error {
	if ok, err := r.roles.RoleExists(ctx, RoleAdministrator); err != nil {
		return fmt.Errorf("check role %s: %w", RoleAdministrator, err)
	} else if !ok {
		if err := r.roles.CreateRole(ctx, RoleAdministrator, "Administrateur", []Capability{Read, ManageOptions}); err != nil {
			return fmt.Errorf("create role %s: %w", RoleAdministrator, err)
		}
	}

	for _, role := range CustomRoles() {
		exists, err := r.roles.RoleExists(ctx, role)
		if err != nil {
			return fmt.Errorf("check role %s: %w", role, err)
		}
		if exists {
			continue
		}
		if err := r.roles.CreateRole(ctx, role, DisplayName(role), Grants(role)); err != nil {
			return fmt.Errorf("create role %s: %w", role, err)
		}
		r.log.Info().Str("role", string(role)).Msg("role registered")
	}
	return nil
}

// GrantToAdministrator makes sure the administrator role carries every
// member-area and content-type capability. Safe to call on every start.
func (r *Registry) GrantToAdministrator(ctx context.Context) error {
	granted := 0
	for _, c := range AdministratorGrants() {
		has, err := r.roles.RoleHasCapability(ctx, RoleAdministrator, c)
		if err != nil {
			return fmt.Errorf("check %s: %w", c, err)
		}
		if has {
			continue
		}
		if err := r.roles.GrantCapability(ctx, RoleAdministrator, c); err != nil {
			return fmt.Errorf("grant %s: %w", c, err)
		}
		granted++
	}
	if granted > 0 {
		r.log.Info().Int("granted", granted).Msg("administrator capabilities updated")
	}
	return nil
}

// MapMetaCap replaces a per-item edit/delete check on a club content
// type with its flat capability. Any holder of the flat capability may act on
// every item of the type, whoever authored it.
func MapMetaCap(caps []Capability, requested Capability, userID int64, args ...any) []Capability {
	for _, t := range ContentTypes() {
		edit, remove := t.Meta()
		if requested == edit || requested == remove {
			return []Capability{t.Coarse()}
		}
	}
	return caps
}

// Checker answers capability questions for a user.
type Checker struct {
	users UserLookup
	roles RoleStore
	log   zerolog.Logger
}

func NewChecker(users UserLookup, roles RoleStore, log zerolog.Logger) *Checker {
	return &Checker{users: users, roles: roles, log: log}
}

// UserCan resolves cap for an already loaded user. Administrators always pass.
func (c *Checker) UserCan(ctx context.Context, user models.User, requested Capability) bool {
	if user.ID == 0 {
		return false
	}
	if IsAdministrator(user.Roles) {
		return true
	}

	granted, err := c.roles.CapabilitiesForRoles(ctx, user.Roles)
	if err != nil {
		c.log.Error().Err(err).Int64("user_id", user.ID).Msg("load role capabilities failed")
		return false
	}
	set := make(map[Capability]struct{}, len(granted))
	for _, g := range granted {
		set[g] = struct{}{}
	}

	required := MapMetaCap([]Capability{requested}, requested, user.ID)
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}

// Can loads the user and resolves cap. Unknown or zero ids never pass.
func (c *Checker) Can(ctx context.Context, userID int64, requested Capability) bool {
	if userID <= 0 {
		return false
	}
	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		c.log.Debug().Err(err).Int64("user_id", userID).Msg("capability lookup without user")
		return false
	}
	return c.UserCan(ctx, user, requested)
}

func (c *Checker) CanAccessMemberArea(ctx context.Context, userID int64) bool {
	return c.Can(ctx, userID, ReadMemberArea)
}

func (c *Checker) CanEditTodos(ctx context.Context, userID int64) bool {
	return c.Can(ctx, userID, EditTodos)
}

func (c *Checker) CanEditDocuments(ctx context.Context, userID int64) bool {
	return c.Can(ctx, userID, EditDocuments)
}

// CanManageMembers is the "is bureau" test.
func (c *Checker) CanManageMembers(ctx context.Context, userID int64) bool {
	return c.Can(ctx, userID, ManageMembers)
}

func (c *Checker) CanViewAuditLog(ctx context.Context, userID int64) bool {
	return c.Can(ctx, userID, ViewAuditLog)
}
