package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/authmode"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/config"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/guard"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/middleware"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/repository"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/roles"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/security"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/service"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memUsers struct {
	mu   sync.Mutex
	byID map[int64]models.User
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
		if u.Login == login {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) FindByExternalID(context.Context, string) (models.User, error) {
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) Create(context.Context, models.User) (int64, error) { return 0, nil }

func (m *memUsers) LinkExternal(context.Context, int64, string, string, string, string) error {
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id int64, hash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

func (m *memUsers) ReplaceRoles(context.Context, int64, []string, string) error { return nil }

func (m *memUsers) UpdateGaletteSync(context.Context, int64, []string, time.Time) error {
	return nil
}

func (m *memUsers) ListMembers(_ context.Context, f repository.MemberFilter) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.byID {
		if capability.HasCustomRole(u.Roles) && (f.Collectif == "" || roles.InCollectif(u.Collectifs, f.Collectif)) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUsers) CountMembers(ctx context.Context, f repository.MemberFilter) (int, error) {
	users, err := m.ListMembers(ctx, f)
	return len(users), err
}

type memOptions struct {
	mu     sync.Mutex
	values map[string]string
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

type memTasks map[int64]models.Task

func (m memTasks) List(context.Context, models.TaskStatus) ([]models.Task, error) {
	out := make([]models.Task, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	return out, nil
}

func (m memTasks) GetByID(_ context.Context, id int64) (models.Task, error) {
	t, ok := m[id]
	if !ok {
		return models.Task{}, repository.ErrTaskNotFound
	}
	return t, nil
}

func (m memTasks) Update(_ context.Context, t models.Task) (models.Task, error) {
	m[t.ID] = t
	return t, nil
}

type memPages map[string]models.Page

func (m memPages) GetBySlug(_ context.Context, slug string) (models.Page, error) {
	p, ok := m[slug]
	if !ok {
		return models.Page{}, repository.ErrPageNotFound
	}
	return p, nil
}

type roleChecker struct{}

func (roleChecker) UserCan(_ context.Context, user models.User, requested capability.Capability) bool {
	if capability.IsAdministrator(user.Roles) {
		return true
	}
	for _, r := range user.Roles {
		for _, c := range capability.Grants(capability.Role(r)) {
			if c == requested {
				return true
			}
		}
	}
	return false
}

const password = "mot-de-passe-solide"

type harness struct {
	router *gin.Engine
	store  *session.Store
	cfg    *config.AppConfig
}

func newHarness(t *testing.T) harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := security.HashPassword(password)
	require.NoError(t, err)

	users := &memUsers{byID: map[int64]models.User{
		1: {ID: 1, Login: "admin", PasswordHash: hash, Status: models.UserStatusActive, Roles: []string{"administrator"}},
		3: {ID: 3, Login: "claire", FirstName: "Claire", PasswordHash: hash, Status: models.UserStatusActive, Roles: []string{"membre"}, Collectifs: []string{"encadrants"}},
		5: {ID: 5, Login: "visiteur", PasswordHash: hash, Status: models.UserStatusActive, Roles: []string{"subscriber"}},
	}}
	options := &memOptions{values: map[string]string{}}

	cfg := &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			CookieName:        "lemur_auth",
			CookieSecret:      "cookie-secret-for-tests",
			FingerprintSecret: "fp-secret",
			MemberIDSecret:    "id-secret",
			HostSessionTTL:    48 * time.Hour,
			RememberMeTTL:     14 * 24 * time.Hour,
		},
		Auth:  config.AuthConfig{DefaultSessionDays: 7},
		Guard: config.GuardConfig{LoginPath: "/connexion", ProtectedSlugs: []string{"annuaire"}},
	}

	log := zerolog.Nop()
	store := session.NewStore(client)
	sessions := session.NewManager(store, options, cfg.Security.FingerprintSecret, 7, log)
	modes := authmode.NewSwitch(options, users, false, log)
	sync := roles.NewSynchronizer(users, roles.NewGroupMapping(nil, nil), log)
	pages := memPages{
		"accueil":  {Slug: "accueil", Title: "Accueil", Content: "<p>Bienvenue</p>"},
		"annuaire": {Slug: "annuaire", Title: "Annuaire", Content: "[lemur_membre]<p>Liste</p>[/lemur_membre]"},
	}
	g := guard.New(roleChecker{}, pages, nil, cfg.Guard.ProtectedSlugs, cfg.Guard.LoginPath, log)

	h := NewHandlerSet(log, cfg, Deps{
		Auth:     service.NewAuthService(users, modes, sessions, sync, nil, cfg, log),
		Members:  service.NewMemberService(users, cfg.Security.MemberIDSecret),
		Tasks:    service.NewTaskService(memTasks{1: {ID: 1, Title: "Cordes", Status: models.TaskStatusTodo}}),
		Settings: service.NewSettingsService(options, modes, sessions, false),
		Modes:    modes,
		Guard:    g,
		Checker:  roleChecker{},
	})

	router := gin.New()
	h.Register(router)
	return harness{router: router, store: store, cfg: cfg}
}

const (
	clientIP = "203.0.113.5"
	clientUA = "Mozilla/5.0 (X11; Linux x86_64)"
)

func (h harness) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	req.Header.Set("X-Forwarded-For", clientIP)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", clientUA)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h harness) login(t *testing.T, login string) *http.Cookie {
	t.Helper()
	form := url.Values{"login": {login}, "password": {password}, "redirect_to": {"/annuaire"}}
	req := httptest.NewRequest(http.MethodPost, "/connexion", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := h.do(req, nil)
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	assert.Equal(t, "/annuaire", w.Header().Get("Location"))

	for _, c := range w.Result().Cookies() {
		if c.Name == "lemur_auth" {
			return c
		}
	}
	t.Fatal("auth cookie not set")
	return nil
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorBody {
	t.Helper()
	var body middleware.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestLoginAndMemberPage(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodGet, "/annuaire", nil), nil)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "not_logged_in", loc.Query().Get("reason"))
	assert.Equal(t, "/annuaire", loc.Query().Get("redirect_to"))

	cookie := h.login(t, "claire")
	w = h.do(httptest.NewRequest(http.MethodGet, "/annuaire", nil), cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<p>Liste</p>")
	assert.Contains(t, w.Body.String(), `<meta name="robots" content="noindex, nofollow">`)

	w = h.do(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Bienvenue")
}

func TestLoginFailureRendersForm(t *testing.T) {
	h := newHarness(t)
	form := url.Values{"login": {"claire"}, "password": {"faux"}}
	req := httptest.NewRequest(http.MethodPost, "/connexion", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := h.do(req, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "incorrect")
}

func TestLoginPageFlags(t *testing.T) {
	h := newHarness(t)
	w := h.do(httptest.NewRequest(http.MethodGet, "/connexion?session_expired=1", nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Votre session a expiré")
}

func TestSubscriberForbidden(t *testing.T) {
	h := newHarness(t)
	cookie := h.login(t, "visiteur")

	w := h.do(httptest.NewRequest(http.MethodGet, "/annuaire", nil), cookie)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "permissions nécessaires")
}

func TestExpiredSessionRedirects(t *testing.T) {
	h := newHarness(t)
	cookie := h.login(t, "claire")

	claims, err := security.ParseHostToken(cookie.Value, h.cfg.Security.CookieSecret)
	require.NoError(t, err)
	require.NoError(t, h.store.Save(context.Background(), 3, session.Record{
		TokenHash: security.HashToken(claims.MemberToken),
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	w := h.do(httptest.NewRequest(http.MethodGet, "/annuaire", nil), cookie)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/connexion", loc.Path)
	assert.Equal(t, "1", loc.Query().Get("session_expired"))
}

func TestLapsedRememberMeCookieReportsExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Cookie issued eight days ago for a seven day member session.
	const memberToken = "member-token-from-last-week"
	cookieValue, err := security.GenerateHostToken(h.cfg.Security.CookieSecret, 3, memberToken, true, -24*time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.store.Save(ctx, 3, session.Record{
		TokenHash: security.HashToken(memberToken),
		ExpiresAt: time.Now().Add(-24 * time.Hour),
	}))
	cookie := &http.Cookie{Name: "lemur_auth", Value: cookieValue}

	w := h.do(httptest.NewRequest(http.MethodGet, "/annuaire", nil), cookie)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "1", loc.Query().Get("session_expired"))

	_, err = h.store.Load(ctx, 3)
	assert.ErrorIs(t, err, session.ErrRecordNotFound)

	// Purged by the worker before the visit.
	w = h.do(httptest.NewRequest(http.MethodGet, "/annuaire", nil), cookie)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err = url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "1", loc.Query().Get("session_expired"))
}

func TestLapsedCookieWithLiveMemberSessionIsLoggedOut(t *testing.T) {
	h := newHarness(t)
	cookie := h.login(t, "claire")

	claims, err := security.ParseHostToken(cookie.Value, h.cfg.Security.CookieSecret)
	require.NoError(t, err)
	lapsed, err := security.GenerateHostToken(h.cfg.Security.CookieSecret, 3, claims.MemberToken, false, -time.Minute)
	require.NoError(t, err)

	w := h.do(httptest.NewRequest(http.MethodGet, "/annuaire", nil), &http.Cookie{Name: "lemur_auth", Value: lapsed})
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "not_logged_in", loc.Query().Get("reason"))
	assert.Empty(t, loc.Query().Get("session_expired"))
}

func TestLoginCookieOutlivesToken(t *testing.T) {
	h := newHarness(t)
	cookie := h.login(t, "claire")

	claims, err := security.ParseHostToken(cookie.Value, h.cfg.Security.CookieSecret)
	require.NoError(t, err)
	tokenLife := time.Until(claims.ExpiresAt.Time)
	assert.Greater(t, time.Duration(cookie.MaxAge)*time.Second, tokenLife)
}

func TestHijackedSessionRedirects(t *testing.T) {
	h := newHarness(t)
	cookie := h.login(t, "claire")

	req := httptest.NewRequest(http.MethodGet, "/annuaire", nil)
	req.Header.Set("User-Agent", "curl/8.5")
	req.Header.Set("X-Forwarded-For", "198.51.100.77")
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "1", loc.Query().Get("security_check"))

	_, err = h.store.Load(context.Background(), 3)
	assert.ErrorIs(t, err, session.ErrRecordNotFound)
}

func TestExpiredSessionAPIProceedsAnonymous(t *testing.T) {
	h := newHarness(t)
	cookie := h.login(t, "claire")
	require.NoError(t, h.store.Save(context.Background(), 3, session.Record{ExpiresAt: time.Now().Add(-time.Minute)}))

	w := h.do(httptest.NewRequest(http.MethodGet, "/api/lemur/v1/members", nil), cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "rest_forbidden", decodeError(t, w).Code)
}

func TestMembersEndpoint(t *testing.T) {
	h := newHarness(t)
	cookie := h.login(t, "claire")

	w := h.do(httptest.NewRequest(http.MethodGet, "/api/lemur/v1/members?collectif=encadrants", nil), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var members []service.MemberView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &members))
	require.Len(t, members, 1)
	assert.Equal(t, "Claire", members[0].FirstName)
	assert.NotContains(t, w.Body.String(), "claire@")

	w = h.do(httptest.NewRequest(http.MethodGet, "/api/lemur/v1/members/count", nil), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":1}`, w.Body.String())
}

func TestTaskEndpoints(t *testing.T) {
	h := newHarness(t)
	cookie := h.login(t, "claire")

	w := h.do(jsonRequest(http.MethodPatch, "/api/lemur/v1/tasks/1", `{"status":"done"}`), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"done"`)

	w = h.do(jsonRequest(http.MethodPatch, "/api/lemur/v1/tasks/1", `{"status":"archived"}`), cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "invalid_task_status", body.Code)
	assert.Equal(t, http.StatusBadRequest, body.Data.Status)

	w = h.do(jsonRequest(http.MethodPatch, "/api/lemur/v1/tasks/99", `{}`), cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "task_not_found", decodeError(t, w).Code)

	w = h.do(jsonRequest(http.MethodPatch, "/api/lemur/v1/tasks/1/checklist", `{"index":4}`), cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_checklist_item", decodeError(t, w).Code)

	w = h.do(jsonRequest(http.MethodPatch, "/api/lemur/v1/tasks/1", `not json`), cookie)
	assert.Equal(t, "invalid_request", decodeError(t, w).Code)
}

func TestSettingsRequireManageOptions(t *testing.T) {
	h := newHarness(t)

	member := h.login(t, "claire")
	w := h.do(httptest.NewRequest(http.MethodGet, "/api/lemur/v1/settings/auth", nil), member)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := h.login(t, "admin")
	w = h.do(jsonRequest(http.MethodPut, "/api/lemur/v1/settings/auth", `{"mode":"oauth","session_days":60}`), admin)
	require.Equal(t, http.StatusOK, w.Code)
	var settings service.AuthSettings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, authmode.ModeLocal, settings.Mode)
	assert.Equal(t, 30, settings.SessionDays)
}

func TestCacheVersion(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodGet, "/api/lemur/v1/cache-version", nil), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"version":0}`, w.Body.String())

	w = h.do(httptest.NewRequest(http.MethodPost, "/api/lemur/v1/cache-version/bump", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	admin := h.login(t, "admin")
	w = h.do(httptest.NewRequest(http.MethodPost, "/api/lemur/v1/cache-version/bump", nil), admin)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(httptest.NewRequest(http.MethodGet, "/api/lemur/v1/cache-version", nil), nil)
	assert.NotContains(t, w.Body.String(), `"version":0`)
}

func TestChangePasswordEndpoint(t *testing.T) {
	h := newHarness(t)
	cookie := h.login(t, "claire")

	w := h.do(jsonRequest(http.MethodPost, "/api/lemur/v1/me/password", `{"current_password":"faux","new_password":"nouveau-mot-de-passe"}`), cookie)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(jsonRequest(http.MethodPost, "/api/lemur/v1/me/password",
		`{"current_password":"`+password+`","new_password":"nouveau-mot-de-passe"}`), cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(httptest.NewRequest(http.MethodGet, "/api/lemur/v1/me", nil), cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	cookie := h.login(t, "claire")

	w := h.do(httptest.NewRequest(http.MethodPost, "/deconnexion", nil), cookie)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/connexion?loggedout=1", w.Header().Get("Location"))

	_, err := h.store.Load(context.Background(), 3)
	assert.ErrorIs(t, err, session.ErrRecordNotFound)
}

func TestHealthWithoutChecks(t *testing.T) {
	h := newHarness(t)

	w := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "disabled", body.Database)
}
