package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/cylinderhub/cylinderhub/internal/jobs"
	"github.com/cylinderhub/cylinderhub/internal/platform/kv"
	"github.com/cylinderhub/cylinderhub/internal/session"
)

// KeyScanner is the part of the durable store the sweep walks.
type KeyScanner interface {
	kv.Store
	Scan(ctx context.Context, pattern string, fn func(key string) error) error
}

// SweepResult summarises one sweep run.
type SweepResult struct {
	Scanned int
	Corrupt int
	Expired int
}

// SessionSweepJob deletes stored sessions that GetSession would discard.
type SessionSweepJob struct {
	Store   KeyScanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionSweepJob wires dependencies for the sweep handler.
func NewSessionSweepJob(store KeyScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepJob {
	return &SessionSweepJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock:   time.Now,
	}
}

// Handle processes session sweep tasks.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("session sweep: handler not configured")
	}
	var payload SessionSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run sweeps the keys selected by payload.
func (j *SessionSweepJob) Run(ctx context.Context, payload SessionSweepPayload) (result SweepResult, err error) {
	pattern := payload.Pattern
	if pattern == "" {
		pattern = session.KeyPattern
	}
	tracker := j.Metrics.Track(TaskSessionSweep)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("pattern", pattern), slog.Bool("dry_run", payload.DryRun))
	now := j.clock()
	err = j.Store.Scan(ctx, pattern, func(key string) error {
		result.Scanned++
		data, err := j.Store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				return nil
			}
			return err
		}
		_, reason, _ := session.Inspect(data, now)
		switch reason {
		case "":
			return nil
		case session.DiscardCorrupt:
			result.Corrupt++
		case session.DiscardExpired:
			result.Expired++
		}
		j.Metrics.AddSwept(reason, 1)
		if payload.DryRun {
			return nil
		}
		if err := j.Store.Delete(ctx, key); err != nil {
			return fmt.Errorf("session sweep: delete %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		logger.Error("session sweep failed", slog.Any("error", err))
		return result, err
	}
	logger.Info("session sweep completed",
		slog.Int("scanned", result.Scanned),
		slog.Int("corrupt", result.Corrupt),
		slog.Int("expired", result.Expired))
	return result, nil
}

func (j *SessionSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
