package service

import (
	"context"
	"strings"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/repository"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/security"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	maxPage        = 10000
)

type MemberDirectory interface {
	ListMembers(ctx context.Context, filter repository.MemberFilter) ([]models.User, error)
	CountMembers(ctx context.Context, filter repository.MemberFilter) (int, error)
}

// MemberView is the public face of a member in the directory: an opaque ID
// and a first name, nothing else.
type MemberView struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
}

type MemberQuery struct {
	Collectif string
	Page      int
	PerPage   int
}

type MemberService struct {
	members  MemberDirectory
	idSecret string
}

func NewMemberService(members MemberDirectory, idSecret string) *MemberService {
	return &MemberService{members: members, idSecret: idSecret}
}

func (s *MemberService) filter(q MemberQuery) repository.MemberFilter {
	roles := make([]string, 0, 3)
	for _, r := range capability.CustomRoles() {
		roles = append(roles, string(r))
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	perPage := q.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	return repository.MemberFilter{
		Roles:     roles,
		Collectif: strings.ToLower(strings.TrimSpace(q.Collectif)),
		Limit:     perPage,
		Offset:    (page - 1) * perPage,
	}
}

func (s *MemberService) List(ctx context.Context, q MemberQuery) ([]MemberView, error) {
	users, err := s.members.ListMembers(ctx, s.filter(q))
	if err != nil {
		return nil, err
	}

	out := make([]MemberView, 0, len(users))
	for _, u := range users {
		out = append(out, MemberView{
			ID:        security.ObfuscateID(s.idSecret, u.ID),
			FirstName: firstName(u),
		})
	}
	return out, nil
}

func (s *MemberService) Count(ctx context.Context, collectif string) (int, error) {
	return s.members.CountMembers(ctx, s.filter(MemberQuery{Collectif: collectif}))
}

func firstName(u models.User) string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	if fields := strings.Fields(u.DisplayName); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
