// Package tasks executes background jobs read from the job stream.
package tasks

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/capability"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/jobs"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/metrics"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/models"
)

type ExternalUsers interface {
	ListExternal(ctx context.Context) (map[int64]string, error)
	GetByID(ctx context.Context, id int64) (models.User, error)
}

type GroupSource interface {
	MemberGroups(ctx context.Context, subject string) ([]string, error)
}

type RoleSyncer interface {
	SyncGaletteRole(ctx context.Context, userID int64, groups []string) (capability.Role, error)
}

type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

type Processor struct {
	users    ExternalUsers
	groups   GroupSource
	roles    RoleSyncer
	sessions SessionPurger
	logger   zerolog.Logger
}

// NewProcessor builds the job handler. groups may be nil when Galette is not
// configured; galette_sync jobs are then skipped.
func NewProcessor(users ExternalUsers, groups GroupSource, roles RoleSyncer, sessions SessionPurger, logger zerolog.Logger) *Processor {
	return &Processor{
		users:    users,
		groups:   groups,
		roles:    roles,
		sessions: sessions,
		logger:   logger,
	}
}

type TaskPayload struct {
	Type   string
	UserID int64
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	payload, err := decodePayload(msg.Values)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case jobs.TypeGaletteSync:
		err = p.handleGaletteSync(ctx, payload)
	case jobs.TypeSessionPurge:
		err = p.handleSessionPurge(ctx)
	default:
		p.logger.Warn().Str("type", payload.Type).Msg("unknown task type")
		return nil
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.JobsProcessedTotal.WithLabelValues(payload.Type, result).Inc()
	return err
}

func decodePayload(values map[string]interface{}) (TaskPayload, error) {
	var payload TaskPayload
	if t, ok := values["type"].(string); ok {
		payload.Type = t
	}
	if raw, ok := values["userId"].(string); ok && raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return TaskPayload{}, fmt.Errorf("user id %q: %w", raw, err)
		}
		payload.UserID = id
	}
	return payload, nil
}

func (p *Processor) handleGaletteSync(ctx context.Context, payload TaskPayload) error {
	if p.groups == nil {
		p.logger.Debug().Msg("galette not configured, sync skipped")
		return nil
	}

	targets := make(map[int64]string)
	if payload.UserID > 0 {
		user, err := p.users.GetByID(ctx, payload.UserID)
		if err != nil {
			return fmt.Errorf("load user %d: %w", payload.UserID, err)
		}
		if user.ExternalID == nil || *user.ExternalID == "" {
			p.logger.Info().Int64("user_id", payload.UserID).Msg("user not linked to galette")
			return nil
		}
		targets[payload.UserID] = *user.ExternalID
	} else {
		all, err := p.users.ListExternal(ctx)
		if err != nil {
			return fmt.Errorf("list linked users: %w", err)
		}
		targets = all
	}

	failed := 0
	for userID, subject := range targets {
		groups, err := p.groups.MemberGroups(ctx, subject)
		if err != nil {
			failed++
			p.logger.Error().Err(err).Int64("user_id", userID).Msg("fetch galette groups failed")
			continue
		}
		if _, err := p.roles.SyncGaletteRole(ctx, userID, groups); err != nil {
			failed++
			p.logger.Error().Err(err).Int64("user_id", userID).Msg("role sync failed")
		}
	}

	p.logger.Info().
		Int("users", len(targets)).
		Int("failed", failed).
		Msg("galette sync finished")
	if payload.UserID > 0 && failed > 0 {
		return fmt.Errorf("galette sync failed for user %d", payload.UserID)
	}
	return nil
}

func (p *Processor) handleSessionPurge(ctx context.Context) error {
	removed, err := p.sessions.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	p.logger.Info().Int("removed", removed).Msg("expired member sessions purged")
	return nil
}
