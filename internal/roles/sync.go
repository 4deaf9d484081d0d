// Package roles reconciles local club roles and collectif tags with the group
// names Galette reports for a member.
package roles

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
)

const (
	collectifPrefix = "collectif-"
	encadrants      = "encadrants"
)

// GroupMapping lists the Galette group names for each privilege tier.
type GroupMapping struct {
	Bureau []string
	Member []string
}

func NewGroupMapping(bureau, member []string) GroupMapping {
	return GroupMapping{Bureau: normalizeAll(bureau), Member: normalizeAll(member)}
}

// DetermineRoleFromGroups picks the local role for a set of Galette groups.
// A bureau-tier group anywhere in the list wins; otherwise a member-tier group
// or any unmapped group gives membre; no group at all gives backup_member.
func DetermineRoleFromGroups(groups []string, m GroupMapping) capability.Role {
	bureau := toSet(m.Bureau)
	member := toSet(m.Member)

	foundMember := false
	for _, g := range groups {
		n := normalize(g)
		if _, ok := bureau[n]; ok {
			return capability.RoleBureau
		}
		if _, ok := member[n]; ok {
			foundMember = true
		}
	}
	if foundMember {
		return capability.RoleMembre
	}
	if len(groups) > 0 {
		return capability.RoleMembre
	}
	return capability.RoleBackupMember
}

// ExtractCollectifs keeps collectif-* groups and the encadrants tag,
// normalised, deduplicated and sorted.
func ExtractCollectifs(groups []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, g := range groups {
		n := normalize(g)
		if !strings.HasPrefix(n, collectifPrefix) && n != encadrants {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (models.User, error)
	ReplaceRoles(ctx context.Context, userID int64, remove []string, add string) error
	UpdateGaletteSync(ctx context.Context, userID int64, collectifs []string, syncedAt time.Time) error
}

type Synchronizer struct {
	users   UserStore
	mapping GroupMapping
	log     zerolog.Logger
	now     func() time.Time
}

func NewSynchronizer(users UserStore, mapping GroupMapping, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		users:   users,
		mapping: mapping,
		log:     log,
		now:     time.Now,
	}
}

// SyncGaletteRole applies the role derived from groups. A user ends up with
// exactly one club role. Collectifs and the sync timestamp are always
// overwritten, even when the role is unchanged.
func (s *Synchronizer) SyncGaletteRole(ctx context.Context, userID int64, groups []string) (capability.Role, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load user %d: %w", userID, err)
	}

	target := DetermineRoleFromGroups(groups, s.mapping)
	if !user.HasRole(string(target)) || countCustom(user.Roles) > 1 {
		custom := capability.CustomRoles()
		remove := make([]string, 0, len(custom))
		for _, r := range custom {
			remove = append(remove, string(r))
		}
		if err := s.users.ReplaceRoles(ctx, userID, remove, string(target)); err != nil {
			return "", fmt.Errorf("replace roles: %w", err)
		}
		s.log.Info().
			Int64("user_id", userID).
			Str("role", string(target)).
			Msg("galette role applied")
	}

	collectifs := ExtractCollectifs(groups)
	if err := s.users.UpdateGaletteSync(ctx, userID, collectifs, s.now().UTC()); err != nil {
		return "", fmt.Errorf("store collectifs: %w", err)
	}
	return target, nil
}

func (s *Synchronizer) GetUserCollectifs(ctx context.Context, userID int64) ([]string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Collectifs, nil
}

func (s *Synchronizer) UserInCollectif(ctx context.Context, name string, userID int64) bool {
	if userID <= 0 {
		return false
	}
	collectifs, err := s.GetUserCollectifs(ctx, userID)
	if err != nil {
		return false
	}
	return InCollectif(collectifs, name)
}

// InCollectif is the exact membership test against a stored tag list.
func InCollectif(collectifs []string, name string) bool {
	for _, c := range collectifs {
		if c == name {
			return true
		}
	}
	return false
}

func countCustom(roles []string) int {
	n := 0
	for _, r := range roles {
		if capability.IsCustomRole(r) {
			n++
		}
	}
	return n
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, i := range items {
		set[i] = struct{}{}
	}
	return set
}
