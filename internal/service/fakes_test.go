package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/authmode"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/config"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/repository"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/roles"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/session"
)

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]models.User
}

func newMemUsers(users ...models.User) *memUsers {
	m := &memUsers{byID: make(map[int64]models.User), nextID: 100}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByID(_ context.Context, id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) FindByLogin(_ context.Context, login string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Login == login || (u.Email != "" && u.Email == login) {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) FindByExternalID(_ context.Context, externalID string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

// Create enforces the same uniqueness as the users table: login always,
// email only when set.
func (m *memUsers) Create(_ context.Context, user models.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Login == user.Login || (user.Email != "" && u.Email == user.Email) {
			return 0, errors.New("duplicate key value violates unique constraint")
		}
	}
	m.nextID++
	user.ID = m.nextID
	m.byID[user.ID] = user
	return user.ID, nil
}

func (m *memUsers) LinkExternal(_ context.Context, id int64, externalID, email, displayName, firstName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.ExternalID = &externalID
	if email != "" {
		u.Email = email
	}
	if displayName != "" {
		u.DisplayName = displayName
	}
	if firstName != "" {
		u.FirstName = firstName
	}
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id int64, hash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

func (m *memUsers) ReplaceRoles(_ context.Context, id int64, remove []string, add string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	drop := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		drop[r] = struct{}{}
	}
	kept := []string{}
	for _, r := range u.Roles {
		if _, ok := drop[r]; !ok {
			kept = append(kept, r)
		}
	}
	if add != "" {
		kept = append(kept, add)
	}
	sort.Strings(kept)
	u.Roles = kept
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdateGaletteSync(_ context.Context, id int64, collectifs []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	u.Collectifs = collectifs
	u.GaletteSyncedAt = &at
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdateStatus(_ context.Context, id int64, status models.UserStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Status = status
	m.byID[id] = u
	return nil
}

func (m *memUsers) AddRole(_ context.Context, id int64, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	if !u.HasRole(role) {
		u.Roles = append(u.Roles, role)
		sort.Strings(u.Roles)
	}
	m.byID[id] = u
	return nil
}

type memOptions struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemOptions() *memOptions {
	return &memOptions{values: make(map[string]string)}
}

func (m *memOptions) GetOption(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	if !ok {
		return "", repository.ErrOptionNotFound
	}
	return v, nil
}

func (m *memOptions) SetOption(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	return nil
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			CookieName:        "lemur_auth",
			CookieSecret:      "cookie-secret-for-tests",
			FingerprintSecret: "fp-secret",
			MemberIDSecret:    "id-secret",
			HostSessionTTL:    48 * time.Hour,
			RememberMeTTL:     14 * 24 * time.Hour,
		},
		Auth: config.AuthConfig{DefaultSessionDays: 7},
	}
}

type authFixture struct {
	svc      *AuthService
	users    *memUsers
	options  *memOptions
	sessions *session.Manager
	store    *session.Store
	modes    *authmode.Switch
}

func newAuthFixture(t *testing.T, verifier IdentityVerifier, users ...models.User) authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	log := zerolog.Nop()
	userStore := newMemUsers(users...)
	options := newMemOptions()
	store := session.NewStore(client)
	sessions := session.NewManager(store, options, cfg.Security.FingerprintSecret, cfg.Auth.DefaultSessionDays, log)
	modes := authmode.NewSwitch(options, userStore, verifier != nil, log)
	sync := roles.NewSynchronizer(userStore, roles.NewGroupMapping([]string{"bureau"}, []string{"membres"}), log)

	return authFixture{
		svc:      NewAuthService(userStore, modes, sessions, sync, verifier, cfg, log),
		users:    userStore,
		options:  options,
		sessions: sessions,
		store:    store,
		modes:    modes,
	}
}
