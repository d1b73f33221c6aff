package fcsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// ErrRunInFlight means another run of the same kind currently holds the lock.
// The caller is expected to let the next tick retry rather than queue.
var ErrRunInFlight = errors.New("sync run already in flight for this kind")

// ErrKindDisabled means the kind is excluded by the FC_SYNC_KINDS allow list.
var ErrKindDisabled = errors.New("entity kind is disabled")

const runLockTTL = 30 * time.Minute

// Locker is the single-flight guard for one entity kind's run.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// RedisLocker backs Locker with redislock, so single-flight holds across
// replicas of this service.
type RedisLocker struct{}

func (RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, errors.New("redis lock client not initialized")
	}
	lock, err := locker.Obtain(ctx, key, ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrRunInFlight
		}
		return nil, err
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}

// Scheduler fans periodic ticks out to per-kind runs. Kinds are independent:
// each tick triggers every enabled kind in its own goroutine, and the lock
// makes concurrent runs of one kind impossible rather than merely unlikely.
type Scheduler struct {
	Worker   *Worker
	Locker   Locker
	Logger   *logrus.Logger
	Interval time.Duration
}

func NewScheduler(worker *Worker, logger *logrus.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		Worker:   worker,
		Locker:   RedisLocker{},
		Logger:   logger,
		Interval: interval,
	}
}

// TriggerKind runs one kind now, under its single-flight lock. Returns
// ErrRunInFlight when the kind is already running somewhere.
func (s *Scheduler) TriggerKind(ctx context.Context, kind EntityKind, overrideDate *time.Time, triggeredBy string) (*RunSummary, error) {
	if !config.FcSyncKindEnabled(string(kind)) {
		return nil, fmt.Errorf("%w: %q", ErrKindDisabled, kind)
	}

	release, err := s.Locker.Obtain(ctx, "fcsync:run:"+string(kind), runLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.Worker.RunKind(ctx, kind, overrideDate, triggeredBy)
}

// Start launches the periodic loop. Interval <= 0 disables it, leaving only
// HTTP / Pub/Sub triggers.
func (s *Scheduler) Start(ctx context.Context) {
	if s.Interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context) {
	for _, kind := range s.Worker.Registry.Kinds() {
		if !config.FcSyncKindEnabled(string(kind)) {
			continue
		}
		go func(kind EntityKind) {
			_, err := s.TriggerKind(ctx, kind, nil, "scheduler")
			if err != nil && s.Logger != nil {
				if errors.Is(err, ErrRunInFlight) {
					s.Logger.WithFields(logrus.Fields{"module": "fcsync", "kind": kind}).
						Debug("skipping tick, run in flight")
					return
				}
				config.LogError(s.Logger, "fcsync", "tick", string(kind), nil, err)
			}
		}(kind)
	}
}
