package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/authmode"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/config"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/galette"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/metrics"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/repository"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/security"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/session"
)

var (
	ErrInvalidCredentials    = errors.New("identifiant ou mot de passe incorrect")
	ErrUserSuspended         = errors.New("ce compte est suspendu")
	ErrExternalLoginDisabled = errors.New("la connexion Galette n'est pas disponible")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrWeakPassword          = errors.New("le mot de passe doit contenir au moins 10 caractères")
)

const (
	minPasswordLength = 10

	// lapsedCookieGrace keeps the browser cookie past the token expiry so a
	// lapsed member session can still be reported as expired.
	lapsedCookieGrace = 7 * 24 * time.Hour
)

type UserStore interface {
	GetByID(ctx context.Context, id int64) (models.User, error)
	FindByLogin(ctx context.Context, login string) (models.User, error)
	FindByExternalID(ctx context.Context, externalID string) (models.User, error)
	Create(ctx context.Context, user models.User) (int64, error)
	LinkExternal(ctx context.Context, id int64, externalID, email, displayName, firstName string) error
	UpdatePassword(ctx context.Context, id int64, hash []byte) error
}

type IdentityVerifier interface {
	Verify(ctx context.Context, raw string) (galette.Identity, error)
}

type RoleSyncer interface {
	SyncGaletteRole(ctx context.Context, userID int64, groups []string) (capability.Role, error)
}

type AuthService struct {
	users    UserStore
	modes    *authmode.Switch
	sessions *session.Manager
	roles    RoleSyncer
	verifier IdentityVerifier
	cfg      *config.AppConfig
	log      zerolog.Logger
}

// NewAuthService wires the login flows. verifier may be nil when no Galette
// identity provider is configured.
func NewAuthService(
	users UserStore,
	modes *authmode.Switch,
	sessions *session.Manager,
	roles RoleSyncer,
	verifier IdentityVerifier,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		modes:    modes,
		sessions: sessions,
		roles:    roles,
		verifier: verifier,
		cfg:      cfg,
		log:      log,
	}
}

type LoginInput struct {
	Login     string
	Password  string
	Remember  bool
	IPAddress string
	UserAgent string
}

type ExternalLoginInput struct {
	IDToken   string
	Remember  bool
	IPAddress string
	UserAgent string
}

// AuthResult carries the signed host cookie value, how long the token inside
// is valid and how long the browser keeps the cookie.
type AuthResult struct {
	User         models.User
	Cookie       string
	CookieTTL    time.Duration
	CookieMaxAge time.Duration
}

func (s *AuthService) LocalLogin(ctx context.Context, input LoginInput) (AuthResult, error) {
	login := strings.TrimSpace(input.Login)
	if login == "" || input.Password == "" {
		metrics.LoginsTotal.WithLabelValues("local", "invalid").Inc()
		return AuthResult{}, ErrInvalidCredentials
	}

	if err := s.modes.AuthenticateLocal(ctx, login); err != nil {
		metrics.LoginsTotal.WithLabelValues("local", "disabled").Inc()
		return AuthResult{}, err
	}

	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			metrics.LoginsTotal.WithLabelValues("local", "invalid").Inc()
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if user.Status != models.UserStatusActive {
		metrics.LoginsTotal.WithLabelValues("local", "suspended").Inc()
		return AuthResult{}, ErrUserSuspended
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		metrics.LoginsTotal.WithLabelValues("local", "invalid").Inc()
		return AuthResult{}, ErrInvalidCredentials
	}

	result, err := s.issue(ctx, user, input.Remember, input.IPAddress, input.UserAgent)
	if err != nil {
		return AuthResult{}, err
	}
	metrics.LoginsTotal.WithLabelValues("local", "ok").Inc()
	return result, nil
}

// ExternalLogin accepts a Galette ID token, links or creates the account,
// applies the Galette role and opens the member session.
func (s *AuthService) ExternalLogin(ctx context.Context, input ExternalLoginInput) (AuthResult, error) {
	if s.verifier == nil || !s.modes.AllowsExternal(ctx) {
		metrics.LoginsTotal.WithLabelValues("galette", "disabled").Inc()
		return AuthResult{}, ErrExternalLoginDisabled
	}

	identity, err := s.verifier.Verify(ctx, input.IDToken)
	if err != nil {
		s.log.Warn().Err(err).Msg("galette token rejected")
		metrics.LoginsTotal.WithLabelValues("galette", "invalid").Inc()
		return AuthResult{}, ErrInvalidCredentials
	}

	userID, err := s.resolveExternal(ctx, identity)
	if err != nil {
		return AuthResult{}, err
	}

	if _, err := s.roles.SyncGaletteRole(ctx, userID, identity.Groups); err != nil {
		return AuthResult{}, fmt.Errorf("sync galette role: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return AuthResult{}, err
	}
	if user.Status != models.UserStatusActive {
		metrics.LoginsTotal.WithLabelValues("galette", "suspended").Inc()
		return AuthResult{}, ErrUserSuspended
	}

	result, err := s.issue(ctx, user, input.Remember, input.IPAddress, input.UserAgent)
	if err != nil {
		return AuthResult{}, err
	}
	metrics.LoginsTotal.WithLabelValues("galette", "ok").Inc()
	return result, nil
}

// resolveExternal finds the account for a Galette subject: first by subject,
// then by email (linking it), otherwise a new account is created.
func (s *AuthService) resolveExternal(ctx context.Context, id galette.Identity) (int64, error) {
	user, err := s.users.FindByExternalID(ctx, id.Subject)
	if err == nil {
		if err := s.users.LinkExternal(ctx, user.ID, id.Subject, id.Email, id.Name, id.FirstName); err != nil {
			return 0, fmt.Errorf("refresh external identity: %w", err)
		}
		return user.ID, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return 0, err
	}

	if id.Email != "" {
		user, err = s.users.FindByLogin(ctx, id.Email)
		switch {
		case err == nil:
			if err := s.users.LinkExternal(ctx, user.ID, id.Subject, id.Email, id.Name, id.FirstName); err != nil {
				return 0, fmt.Errorf("link external identity: %w", err)
			}
			s.log.Info().Int64("user_id", user.ID).Str("subject", id.Subject).Msg("account linked to galette")
			return user.ID, nil
		case !errors.Is(err, repository.ErrUserNotFound):
			return 0, err
		}
	}

	login := id.Username
	if login == "" {
		login = id.Email
	}
	if login == "" {
		login = "galette-" + id.Subject
	}
	subject := id.Subject
	newID, err := s.users.Create(ctx, models.User{
		Login:       login,
		Email:       id.Email,
		DisplayName: id.Name,
		FirstName:   id.FirstName,
		ExternalID:  &subject,
		Status:      models.UserStatusActive,
	})
	if err != nil {
		return 0, fmt.Errorf("create galette account: %w", err)
	}
	s.log.Info().Int64("user_id", newID).Str("subject", id.Subject).Msg("galette account created")
	return newID, nil
}

func (s *AuthService) issue(ctx context.Context, user models.User, remember bool, ip, userAgent string) (AuthResult, error) {
	memberToken, err := s.sessions.Start(ctx, user, ip, userAgent)
	if err != nil {
		return AuthResult{}, fmt.Errorf("start member session: %w", err)
	}

	hostDefault := s.cfg.Security.HostSessionTTL
	if remember {
		hostDefault = s.cfg.Security.RememberMeTTL
	}
	ttl := s.sessions.CookieLifetime(ctx, user, remember, hostDefault)

	cookie, err := security.GenerateHostToken(s.cfg.Security.CookieSecret, user.ID, memberToken, remember, ttl)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{User: user, Cookie: cookie, CookieTTL: ttl, CookieMaxAge: ttl + lapsedCookieGrace}, nil
}

// RequestAuth is the identity resolved from a request's host cookie.
type RequestAuth struct {
	User    models.User
	Claims  *security.HostClaims
	Outcome session.Outcome
}

// Authenticate resolves the host cookie and checks the member session.
func (s *AuthService) Authenticate(ctx context.Context, cookie, ip, userAgent string) (RequestAuth, error) {
	claims, err := security.ParseHostToken(cookie, s.cfg.Security.CookieSecret)
	lapsed := errors.Is(err, security.ErrHostTokenExpired)
	if err != nil && !lapsed {
		return RequestAuth{}, ErrNotAuthenticated
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return RequestAuth{}, ErrNotAuthenticated
		}
		return RequestAuth{}, err
	}
	if user.Status != models.UserStatusActive {
		return RequestAuth{}, ErrNotAuthenticated
	}

	if lapsed {
		if claims.MemberToken == "" || !capability.HasCustomRole(user.Roles) {
			return RequestAuth{}, ErrNotAuthenticated
		}
		outcome, err := s.sessions.CheckLapsed(ctx, user, claims.MemberToken)
		if err != nil {
			return RequestAuth{}, err
		}
		return RequestAuth{User: user, Claims: claims, Outcome: outcome}, nil
	}

	outcome, err := s.sessions.Check(ctx, user, claims.MemberToken, ip, userAgent)
	if err != nil {
		return RequestAuth{}, err
	}
	return RequestAuth{User: user, Claims: claims, Outcome: outcome}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	return s.sessions.Destroy(ctx, userID)
}

func (s *AuthService) ChangePassword(ctx context.Context, user models.User, current, next string) error {
	if len(user.PasswordHash) > 0 {
		ok, err := security.VerifyPassword(current, user.PasswordHash)
		if err != nil || !ok {
			return ErrInvalidCredentials
		}
	}
	if len(next) < minPasswordLength {
		return ErrWeakPassword
	}
	return s.setPassword(ctx, user.ID, next)
}

// ResetPassword replaces the password with a random one and returns it.
func (s *AuthService) ResetPassword(ctx context.Context, userID int64) (string, error) {
	password, _, err := security.GenerateSessionToken(12)
	if err != nil {
		return "", err
	}
	if err := s.setPassword(ctx, userID, password); err != nil {
		return "", err
	}
	return password, nil
}

func (s *AuthService) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.sessions.Destroy(ctx, userID); err != nil {
		return fmt.Errorf("destroy member session: %w", err)
	}
	s.log.Info().Int64("user_id", userID).Msg("password changed")
	return nil
}
