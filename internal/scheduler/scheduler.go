package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/config"
	"github.com/tradefork/engine/internal/briefing"
	"github.com/tradefork/engine/internal/patrol"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
	"github.com/tradefork/engine/pkg/worker"
)

// Fixed cadences not worth a config knob
const (
	temperatureInterval = time.Hour
	cleanupInterval     = time.Hour
	briefingInterval    = 5 * time.Minute

	quotaResetGrace = 10 * time.Minute

	staleTriggerAge = 72 * time.Hour
)

var kst = time.FixedZone("KST", 9*60*60)

// UserSource lists the users each job sweeps
type UserSource interface {
	GetMonitoredUsers(ctx context.Context) ([]models.User, error)
	GetBriefingUsers(ctx context.Context, hour int) ([]models.User, error)
	ResetAllDailySignals(ctx context.Context, now time.Time) (int64, error)
}

// TradeDetector polls exchanges for entries and exits
type TradeDetector interface {
	PollUser(ctx context.Context, user *models.User) (int, error)
	DetectCloses(ctx context.Context, user *models.User) error
}

// PositionTracker comments on open positions
type PositionTracker interface {
	CheckPositions(ctx context.Context, user *models.User) error
}

// StreamPoller refreshes stream values and exposes snapshots
type StreamPoller interface {
	PollTemperature(ctx context.Context, temperatures ...string) error
	AutoTransition(ctx context.Context, userID int64) (int64, int64, error)
	HotSnapshot(ctx context.Context, userID int64) (map[string]models.JSONMap, error)
}

// TriggerEvaluator checks a user's triggers against a snapshot
type TriggerEvaluator interface {
	EvaluateUser(ctx context.Context, user *models.User, snapshot map[string]models.JSONMap) (int, error)
}

// TriggerJanitor retires abandoned auto triggers
type TriggerJanitor interface {
	RetireStale(ctx context.Context, maxAge time.Duration) (int64, error)
}

// PatrolService runs the hourly sweep
type PatrolService interface {
	ShouldSkip(user *models.User, now time.Time) bool
	Run(ctx context.Context, user *models.User) (*patrol.Report, error)
}

// BriefingService delivers the daily briefing
type BriefingService interface {
	Send(ctx context.Context, user *models.User) error
}

// Scheduler registers every background job on a worker group
type Scheduler struct {
	cfg      *config.EngineConfig
	users    UserSource
	detector TradeDetector
	tracker  PositionTracker
	streams  StreamPoller
	triggers TriggerEvaluator
	janitor  TriggerJanitor
	patrol   PatrolService
	briefing BriefingService

	running atomic.Bool
}

// New creates the scheduler
func New(
	cfg *config.EngineConfig,
	users UserSource,
	detector TradeDetector,
	tracker PositionTracker,
	streams StreamPoller,
	triggers TriggerEvaluator,
	janitor TriggerJanitor,
	patrolSvc PatrolService,
	briefingSvc BriefingService,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		users:    users,
		detector: detector,
		tracker:  tracker,
		streams:  streams,
		triggers: triggers,
		janitor:  janitor,
		patrol:   patrolSvc,
		briefing: briefingSvc,
	}
}

// Register adds every job to the group and marks the scheduler live
func (s *Scheduler) Register(group *worker.WorkerGroup) {
	group.Add(&tradeJob{s}, s.cfg.TradePollInterval)
	group.Add(newMarketJob(s), s.cfg.HotPollInterval)
	group.Add(&patrolJob{s}, s.cfg.PatrolInterval)
	group.Add(&temperatureJob{s}, temperatureInterval)
	group.Add(&cleanupJob{s}, cleanupInterval)
	group.Add(&briefingJob{s}, briefingInterval)
	group.AddDaily(&quotaResetJob{s}, 0, 0, quotaResetGrace)

	s.running.Store(true)
}

// Running reports whether jobs have been registered and started
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Stop flips the liveness flag; the worker group handles the rest
func (s *Scheduler) Stop() {
	s.running.Store(false)
}

// tradeJob polls every monitored user's exchanges for new entries and
// closed positions, then runs position commentary
type tradeJob struct{ s *Scheduler }

func (j *tradeJob) Name() string { return "trade-poll" }

func (j *tradeJob) Run(ctx context.Context) error {
	users, err := j.s.users.GetMonitoredUsers(ctx)
	if err != nil {
		return err
	}

	for i := range users {
		user := &users[i]
		if _, err := j.s.detector.PollUser(ctx, user); err != nil {
			logger.Error("trade poll failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		if err := j.s.detector.DetectCloses(ctx, user); err != nil {
			logger.Error("close detection failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		if err := j.s.tracker.CheckPositions(ctx, user); err != nil {
			logger.Error("position check failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

// marketJob refreshes hot streams every cycle and warm streams every
// Nth cycle, then evaluates triggers against the fresh snapshot
type marketJob struct {
	s         *Scheduler
	warmEvery int
	cycle     int
}

func newMarketJob(s *Scheduler) *marketJob {
	return &marketJob{s: s, warmEvery: s.cfg.WarmCycleEvery()}
}

func (j *marketJob) Name() string { return "base-stream-poll" }

func (j *marketJob) Run(ctx context.Context) error {
	j.cycle++
	temperatures := []string{models.TempHot}
	if j.warmEvery > 0 && j.cycle%j.warmEvery == 0 {
		temperatures = append(temperatures, models.TempWarm)
	}

	if err := j.s.streams.PollTemperature(ctx, temperatures...); err != nil {
		return err
	}

	users, err := j.s.users.GetMonitoredUsers(ctx)
	if err != nil {
		return err
	}
	for i := range users {
		user := &users[i]
		snapshot, err := j.s.streams.HotSnapshot(ctx, user.ID)
		if err != nil {
			logger.Error("snapshot failed", zap.Int64("user_id", user.ID), zap.Error(err))
			continue
		}
		if _, err := j.s.triggers.EvaluateUser(ctx, user, snapshot); err != nil {
			logger.Error("trigger evaluation failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

// patrolJob sweeps each monitored user unless their activity profile
// says to skip this hour
type patrolJob struct{ s *Scheduler }

func (j *patrolJob) Name() string { return "patrol" }

func (j *patrolJob) Run(ctx context.Context) error {
	users, err := j.s.users.GetMonitoredUsers(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range users {
		user := &users[i]
		if j.s.patrol.ShouldSkip(user, now) {
			logger.Debug("patrol skipped", zap.Int64("user_id", user.ID))
			continue
		}
		if _, err := j.s.patrol.Run(ctx, user); err != nil {
			logger.Error("patrol failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

// temperatureJob demotes streams the user stopped mentioning
type temperatureJob struct{ s *Scheduler }

func (j *temperatureJob) Name() string { return "temperature-mgmt" }

func (j *temperatureJob) Run(ctx context.Context) error {
	users, err := j.s.users.GetMonitoredUsers(ctx)
	if err != nil {
		return err
	}

	for i := range users {
		user := &users[i]
		hotToWarm, warmToCold, err := j.s.streams.AutoTransition(ctx, user.ID)
		if err != nil {
			logger.Error("temperature transition failed", zap.Int64("user_id", user.ID), zap.Error(err))
			continue
		}
		if hotToWarm > 0 || warmToCold > 0 {
			logger.Info("stream temperatures adjusted",
				zap.Int64("user_id", user.ID),
				zap.Int64("hot_to_warm", hotToWarm),
				zap.Int64("warm_to_cold", warmToCold),
			)
		}
	}
	return nil
}

// cleanupJob retires auto triggers nothing fired for three days
type cleanupJob struct{ s *Scheduler }

func (j *cleanupJob) Name() string { return "trigger-cleanup" }

func (j *cleanupJob) Run(ctx context.Context) error {
	retired, err := j.s.janitor.RetireStale(ctx, staleTriggerAge)
	if err != nil {
		return err
	}
	if retired > 0 {
		logger.Info("stale triggers retired", zap.Int64("count", retired))
	}
	return nil
}

// briefingJob sweeps for users whose delivery window is open
type briefingJob struct{ s *Scheduler }

func (j *briefingJob) Name() string { return "daily-briefing" }

func (j *briefingJob) Run(ctx context.Context) error {
	now := time.Now().UTC()
	users, err := j.s.users.GetBriefingUsers(ctx, now.In(kst).Hour())
	if err != nil {
		return err
	}

	for i := range users {
		user := &users[i]
		if !briefing.ShouldSend(user, now) {
			continue
		}
		if err := j.s.briefing.Send(ctx, user); err != nil {
			logger.Error("briefing failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

// quotaResetJob zeroes every daily signal counter at midnight UTC
type quotaResetJob struct{ s *Scheduler }

func (j *quotaResetJob) Name() string { return "daily-signal-reset" }

func (j *quotaResetJob) Run(ctx context.Context) error {
	affected, err := j.s.users.ResetAllDailySignals(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	logger.Info("daily signal counters reset", zap.Int64("users", affected))
	return nil
}
