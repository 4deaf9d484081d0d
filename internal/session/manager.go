// Package session manages the extended member session: a per-user record
// holding a hashed token, an expiry and a client fingerprint, checked on
// every request.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/repository"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/security"
)

const (
	OptionSessionDays  = "lemur_session_days"
	DefaultSessionDays = 7
	MinSessionDays     = 1
	MaxSessionDays     = 30

	tokenBytes = 32
)

// Outcome is the result of checking a request against the stored record.
type Outcome int

const (
	Valid Outcome = iota
	Expired
	Hijacked
	Missing
	Foreign
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	case Hijacked:
		return "hijacked"
	case Missing:
		return "missing"
	case Foreign:
		return "foreign"
	default:
		return "unknown"
	}
}

type OptionStore interface {
	GetOption(ctx context.Context, name string) (string, error)
	SetOption(ctx context.Context, name, value string) error
}

type RecordStore interface {
	Save(ctx context.Context, userID int64, rec Record) error
	Load(ctx context.Context, userID int64) (Record, error)
	Delete(ctx context.Context, userID int64) error
	Scan(ctx context.Context, fn func(userID int64, rec Record) error) error
}

type Manager struct {
	records           RecordStore
	options           OptionStore
	fingerprintSecret string
	defaultDays       int
	log               zerolog.Logger
	now               func() time.Time
}

func NewManager(records RecordStore, options OptionStore, fingerprintSecret string, defaultDays int, log zerolog.Logger) *Manager {
	return &Manager{
		records:           records,
		options:           options,
		fingerprintSecret: fingerprintSecret,
		defaultDays:       ClampDays(defaultDays),
		log:               log,
		now:               time.Now,
	}
}

// ClampDays keeps a session length inside [1, 30]; zero means the default.
func ClampDays(days int) int {
	switch {
	case days == 0:
		return DefaultSessionDays
	case days < MinSessionDays:
		return MinSessionDays
	case days > MaxSessionDays:
		return MaxSessionDays
	default:
		return days
	}
}

func (m *Manager) SessionDays(ctx context.Context) int {
	raw, err := m.options.GetOption(ctx, OptionSessionDays)
	if err != nil {
		if !errors.Is(err, repository.ErrOptionNotFound) {
			m.log.Error().Err(err).Msg("read session days")
		}
		return m.defaultDays
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return m.defaultDays
	}
	return ClampDays(days)
}

func (m *Manager) SetSessionDays(ctx context.Context, days int) (int, error) {
	days = ClampDays(days)
	if err := m.options.SetOption(ctx, OptionSessionDays, strconv.Itoa(days)); err != nil {
		return 0, fmt.Errorf("store session days: %w", err)
	}
	return days, nil
}

// Start opens a member session for users holding a club role and returns the
// plaintext token to carry in the host cookie. Other users get an empty token.
func (m *Manager) Start(ctx context.Context, user models.User, ip, userAgent string) (string, error) {
	if !capability.HasCustomRole(user.Roles) {
		return "", nil
	}

	token, hash, err := security.GenerateSessionToken(tokenBytes)
	if err != nil {
		return "", err
	}

	days := m.SessionDays(ctx)
	rec := Record{
		TokenHash: hash,
		ExpiresAt: m.now().Add(time.Duration(days) * 24 * time.Hour),
		IPHash:    m.fingerprint("ip", ip),
		UAHash:    m.fingerprint("ua", userAgent),
	}
	if err := m.records.Save(ctx, user.ID, rec); err != nil {
		return "", err
	}
	return token, nil
}

// Check validates the current request. Users without a club role are always
// Valid. Missing means a cookie without member token and no record; Foreign
// means the token no longer matches a live record (newer login, logout or
// password change). Expired and Hijacked records are destroyed before
// returning.
func (m *Manager) Check(ctx context.Context, user models.User, token, ip, userAgent string) (Outcome, error) {
	if !capability.HasCustomRole(user.Roles) {
		return Valid, nil
	}

	rec, err := m.records.Load(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			if token != "" {
				return Foreign, nil
			}
			return Missing, nil
		}
		return Valid, err
	}

	if !rec.ExpiresAt.IsZero() && !m.now().Before(rec.ExpiresAt) {
		if err := m.Destroy(ctx, user.ID); err != nil {
			return Expired, err
		}
		return Expired, nil
	}

	if rec.TokenHash != "" && token != "" &&
		subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(security.HashToken(token))) != 1 {
		return Foreign, nil
	}

	if !ValidateSecurityContext(rec, m.fingerprint("ip", ip), m.fingerprint("ua", userAgent)) {
		m.log.Warn().
			Int64("user_id", user.ID).
			Str("ip", ip).
			Str("user_agent", userAgent).
			Msg("session hijack suspected")
		if err := m.Destroy(ctx, user.ID); err != nil {
			return Hijacked, err
		}
		return Hijacked, nil
	}

	return Valid, nil
}

// CheckLapsed handles a host cookie whose own expiry has passed. When the
// member session it points to has expired too, or is already purged, the
// outcome is Expired and the record is destroyed. Anything else is Foreign.
func (m *Manager) CheckLapsed(ctx context.Context, user models.User, token string) (Outcome, error) {
	if token == "" || !capability.HasCustomRole(user.Roles) {
		return Foreign, nil
	}

	rec, err := m.records.Load(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Expired, nil
		}
		return Foreign, err
	}

	if rec.TokenHash != "" &&
		subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(security.HashToken(token))) != 1 {
		return Foreign, nil
	}
	if rec.ExpiresAt.IsZero() || m.now().Before(rec.ExpiresAt) {
		return Foreign, nil
	}

	if err := m.Destroy(ctx, user.ID); err != nil {
		return Expired, err
	}
	return Expired, nil
}

// ValidateSecurityContext tolerates a change of either IP or user agent and
// rejects only when both differ. A factor that was never stored counts as
// unchanged, so records with no stored fingerprint pass.
func ValidateSecurityContext(rec Record, ipHash, uaHash string) bool {
	ipMatch := rec.IPHash == "" || rec.IPHash == ipHash
	uaMatch := rec.UAHash == "" || rec.UAHash == uaHash
	return ipMatch || uaMatch
}

func (m *Manager) Destroy(ctx context.Context, userID int64) error {
	return m.records.Delete(ctx, userID)
}

// CookieLifetime extends remember-me cookies of club members to the
// configured session length.
func (m *Manager) CookieLifetime(ctx context.Context, user models.User, remember bool, hostDefault time.Duration) time.Duration {
	if !remember || !capability.HasCustomRole(user.Roles) {
		return hostDefault
	}
	return time.Duration(m.SessionDays(ctx)) * 24 * time.Hour
}

// PurgeExpired removes records whose expiry has passed and returns how many.
func (m *Manager) PurgeExpired(ctx context.Context) (int, error) {
	now := m.now()
	var expired []int64
	err := m.records.Scan(ctx, func(userID int64, rec Record) error {
		if !rec.ExpiresAt.IsZero() && !now.Before(rec.ExpiresAt) {
			expired = append(expired, userID)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan sessions: %w", err)
	}

	for _, id := range expired {
		if err := m.records.Delete(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

func (m *Manager) fingerprint(kind, value string) string {
	return security.Fingerprint(m.fingerprintSecret, kind, value)
}
