package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/authmode"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/repository"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/session"
)

const OptionCacheVersion = "lemur_cache_version"

type OptionStore interface {
	GetOption(ctx context.Context, name string) (string, error)
	SetOption(ctx context.Context, name, value string) error
}

type AuthSettings struct {
	Mode              authmode.Mode `json:"mode"`
	SessionDays       int           `json:"session_days"`
	ExternalAvailable bool          `json:"external_available"`
}

type AuthSettingsUpdate struct {
	Mode        *string `json:"mode"`
	SessionDays *int    `json:"session_days"`
}

type SettingsService struct {
	options           OptionStore
	modes             *authmode.Switch
	sessions          *session.Manager
	externalAvailable bool
	now               func() time.Time
}

func NewSettingsService(options OptionStore, modes *authmode.Switch, sessions *session.Manager, externalAvailable bool) *SettingsService {
	return &SettingsService{
		options:           options,
		modes:             modes,
		sessions:          sessions,
		externalAvailable: externalAvailable,
		now:               time.Now,
	}
}

func (s *SettingsService) AuthSettings(ctx context.Context) AuthSettings {
	return AuthSettings{
		Mode:              s.modes.Mode(ctx),
		SessionDays:       s.sessions.SessionDays(ctx),
		ExternalAvailable: s.externalAvailable,
	}
}

func (s *SettingsService) UpdateAuthSettings(ctx context.Context, update AuthSettingsUpdate) (AuthSettings, error) {
	if update.Mode != nil {
		if _, err := s.modes.SetMode(ctx, *update.Mode); err != nil {
			return AuthSettings{}, err
		}
	}
	if update.SessionDays != nil {
		if _, err := s.sessions.SetSessionDays(ctx, *update.SessionDays); err != nil {
			return AuthSettings{}, err
		}
	}
	return s.AuthSettings(ctx), nil
}

// CacheVersion is the asset cache-busting stamp; zero until first bumped.
func (s *SettingsService) CacheVersion(ctx context.Context) (int64, error) {
	raw, err := s.options.GetOption(ctx, OptionCacheVersion)
	if err != nil {
		if errors.Is(err, repository.ErrOptionNotFound) {
			return 0, nil
		}
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

func (s *SettingsService) BumpCacheVersion(ctx context.Context) (int64, error) {
	v := s.now().Unix()
	if current, err := s.CacheVersion(ctx); err == nil && current >= v {
		v = current + 1
	}
	if err := s.options.SetOption(ctx, OptionCacheVersion, strconv.FormatInt(v, 10)); err != nil {
		return 0, fmt.Errorf("store cache version: %w", err)
	}
	return v, nil
}
