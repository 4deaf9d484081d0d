package jobs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, Enqueue(ctx, client, "lemur:jobs", TypeGaletteSync, 42))
	require.NoError(t, Enqueue(ctx, client, "lemur:jobs", TypeSessionPurge, 0))

	msgs, err := client.XRange(ctx, "lemur:jobs", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, TypeGaletteSync, msgs[0].Values["type"])
	assert.Equal(t, "42", msgs[0].Values["userId"])
	assert.Equal(t, TypeSessionPurge, msgs[1].Values["type"])
	assert.NotContains(t, msgs[1].Values, "userId")
}

func TestSchedulerRegistersJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewScheduler(client, "lemur:jobs", zerolog.Nop())
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()

	s.enqueueSessionPurge()
	n, err := client.XLen(context.Background(), "lemur:jobs").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
