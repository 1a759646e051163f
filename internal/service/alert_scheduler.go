package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/cache"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/jobs"
)

const (
	jobTypeEvaluateSubject = "alerts.evaluate_subject"
	debounceLockKey        = "alerts:debounce:"
)

type alertEngine interface {
	Evaluate(ctx context.Context, subjectID string) (*dto.EvaluationResult, error)
	RunAll(ctx context.Context) (*dto.RunSummary, error)
}

// AlertSchedulerConfig controls the periodic scan and submission triggers.
type AlertSchedulerConfig struct {
	Enabled      bool
	Spec         string
	Debounce     time.Duration
	QueueWorkers int
	QueueBuffer  int
}

// AlertScheduler runs the engine on a cron schedule and after submissions.
type AlertScheduler struct {
	engine   alertEngine
	locker   cache.Locker
	cron     *cron.Cron
	queue    *jobs.Queue
	config   AlertSchedulerConfig
	logger   *zap.Logger
	rootCtx  context.Context
	cancel   context.CancelFunc
	entryID  cron.EntryID
	debounce time.Duration
}

// NewAlertScheduler wires the cron runner and the trigger queue.
func NewAlertScheduler(engine alertEngine, locker cache.Locker, cfg AlertSchedulerConfig, logger *zap.Logger) *AlertScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	if cfg.Spec == "" {
		cfg.Spec = "0 6 * * *"
	}
	s := &AlertScheduler{
		engine:   engine,
		locker:   locker,
		config:   cfg,
		logger:   logger.Named("alert-scheduler"),
		debounce: cfg.Debounce,
	}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	s.queue = jobs.NewQueue("alert-triggers", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.QueueWorkers,
		BufferSize: cfg.QueueBuffer,
		MaxRetries: 1,
		RetryDelay: 5 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the trigger workers and, when enabled, the daily scan.
func (s *AlertScheduler) Start(ctx context.Context) error {
	s.rootCtx, s.cancel = context.WithCancel(ctx)
	s.queue.Start(s.rootCtx)
	if !s.config.Enabled {
		s.logger.Info("periodic alert scan disabled")
		return nil
	}
	id, err := s.cron.AddFunc(s.config.Spec, s.runScheduled)
	if err != nil {
		s.queue.Stop()
		return fmt.Errorf("schedule alert scan %q: %w", s.config.Spec, err)
	}
	s.entryID = id
	s.cron.Start()
	s.logger.Info("periodic alert scan scheduled", zap.String("spec", s.config.Spec), zap.Time("next", s.cron.Entry(id).Next))
	return nil
}

// Stop waits for a running scan and drains the trigger workers.
func (s *AlertScheduler) Stop() {
	if s.cancel == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cancel()
	s.queue.Stop()
}

// Notify asks for a debounced evaluation of one subject. Triggers arriving
// within the debounce interval of a previous one are dropped.
func (s *AlertScheduler) Notify(subjectID string) {
	if subjectID == "" {
		return
	}
	if s.debounce > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, acquired, err := s.locker.TryLock(ctx, debounceLockKey+subjectID, s.debounce)
		cancel()
		if err != nil {
			s.logger.Warn("debounce lock unavailable", zap.String("subject_id", subjectID), zap.Error(err))
		} else if !acquired {
			return
		}
	}
	err := s.queue.TryEnqueue(jobs.Job{ID: subjectID, Type: jobTypeEvaluateSubject, Payload: subjectID})
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			s.logger.Warn("alert trigger dropped, queue full", zap.String("subject_id", subjectID))
			return
		}
		s.logger.Debug("alert trigger skipped", zap.String("subject_id", subjectID), zap.Error(err))
	}
}

// QueueLen reports how many triggers are waiting.
func (s *AlertScheduler) QueueLen() int {
	return s.queue.Len()
}

func (s *AlertScheduler) handleJob(ctx context.Context, job jobs.Job) error {
	subjectID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	result, err := s.engine.Evaluate(ctx, subjectID)
	if err != nil {
		return err
	}
	s.logger.Debug("triggered evaluation done", zap.String("subject_id", subjectID), zap.String("outcome", string(result.Outcome)))
	return nil
}

func (s *AlertScheduler) runScheduled() {
	ctx := s.rootCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.engine.RunAll(ctx); err != nil {
		s.logger.Error("scheduled alert scan failed", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
