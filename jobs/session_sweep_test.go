package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cylinderhub/cylinderhub/internal/access"
	jobmetrics "github.com/cylinderhub/cylinderhub/internal/jobs"
	"github.com/cylinderhub/cylinderhub/internal/platform/kv"
	"github.com/cylinderhub/cylinderhub/internal/session"
)

var sweepNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func storedRecord(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	rec := &session.Record{
		UID:          "u-1",
		Role:         access.RoleAdmin,
		SessionToken: "tok",
		IssuedAt:     expiresAt.Add(-session.DefaultTTL).UnixMilli(),
		ExpiresAt:    expiresAt.UnixMilli(),
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(data)
}

func newSweepFixture(t *testing.T) (*SessionSweepJob, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, mr.Set("session:live", storedRecord(t, sweepNow.Add(time.Hour))))
	require.NoError(t, mr.Set("session:stale", storedRecord(t, sweepNow)))
	require.NoError(t, mr.Set("session:broken", "{not json"))
	require.NoError(t, mr.Set("identity:live", `{"uid":"u-1"}`))

	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewSessionSweepJob(kv.NewRedis(client, ""), nil, metrics)
	job.clock = func() time.Time { return sweepNow }
	return job, mr
}

func TestSessionSweepRemovesStaleEntries(t *testing.T) {
	job, mr := newSweepFixture(t)

	result, err := job.Run(context.Background(), SessionSweepPayload{})
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 3, Corrupt: 1, Expired: 1}, result)

	assert.True(t, mr.Exists("session:live"))
	assert.False(t, mr.Exists("session:stale"))
	assert.False(t, mr.Exists("session:broken"))
	assert.True(t, mr.Exists("identity:live"))
}

func TestSessionSweepDryRunKeepsEntries(t *testing.T) {
	job, mr := newSweepFixture(t)

	result, err := job.Run(context.Background(), SessionSweepPayload{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Corrupt+result.Expired)
	assert.True(t, mr.Exists("session:stale"))
	assert.True(t, mr.Exists("session:broken"))
}

func TestSessionSweepHandleTask(t *testing.T) {
	job, mr := newSweepFixture(t)

	task, err := NewSessionSweepTask(SessionSweepPayload{Pattern: "session:st*"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.False(t, mr.Exists("session:stale"))
	assert.True(t, mr.Exists("session:broken"))

	err = job.Handle(context.Background(), asynq.NewTask(TaskSessionSweep, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	var unconfigured *SessionSweepJob
	assert.Error(t, unconfigured.Handle(context.Background(), task))
}

func TestSessionSweepRecordsMetrics(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, mr.Set("session:broken", "{not json"))

	registry := prometheus.NewRegistry()
	job := NewSessionSweepJob(kv.NewRedis(client, ""), nil, jobmetrics.NewMetrics(registry))
	_, err := job.Run(context.Background(), SessionSweepPayload{})
	require.NoError(t, err)

	families, err := registry.Gather()
	require.NoError(t, err)
	counters := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				counters[family.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), counters["cylinderhub_sessions_swept_total"])
	assert.Equal(t, float64(1), counters["cylinderhub_jobs_total"])
}

func TestSessionSweepSurfacesStoreErrors(t *testing.T) {
	job, mr := newSweepFixture(t)
	mr.Close()

	_, err := job.Run(context.Background(), SessionSweepPayload{})
	assert.Error(t, err)
}
