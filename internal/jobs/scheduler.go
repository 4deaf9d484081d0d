package jobs

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	TypeGaletteSync  = "galette_sync"
	TypeSessionPurge = "session_purge"

	galetteSyncSpec  = "0 30 2 * * *"
	sessionPurgeSpec = "0 0 * * * *"
)

type Scheduler struct {
	cron   *cron.Cron
	queue  *redis.Client
	stream string
	log    zerolog.Logger
}

func NewScheduler(queue *redis.Client, stream string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:   c,
		queue:  queue,
		stream: stream,
		log:    log,
	}
}

// Start registers the nightly Galette synchronisation and the hourly
// member session purge.
func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(galetteSyncSpec, s.enqueueGaletteSync); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(sessionPurgeSpec, s.enqueueSessionPurge); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler and returns once running jobs finish or after
// five seconds.
func (s *Scheduler) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueueGaletteSync() {
	if err := Enqueue(context.Background(), s.queue, s.stream, TypeGaletteSync, 0); err != nil {
		s.log.Error().Err(err).Msg("enqueue galette sync failed")
	}
}

func (s *Scheduler) enqueueSessionPurge() {
	if err := Enqueue(context.Background(), s.queue, s.stream, TypeSessionPurge, 0); err != nil {
		s.log.Error().Err(err).Msg("enqueue session purge failed")
	}
}

// Enqueue appends a job to the stream. A positive userID narrows the job to
// one account.
func Enqueue(ctx context.Context, client *redis.Client, stream, jobType string, userID int64) error {
	if client == nil {
		return nil
	}
	values := map[string]any{"type": jobType}
	if userID > 0 {
		values["userId"] = strconv.FormatInt(userID, 10)
	}
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Err()
}
