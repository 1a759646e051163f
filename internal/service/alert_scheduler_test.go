package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/dto"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/cache"
)

type countingEngine struct {
	mu        sync.Mutex
	evaluated []string
	runs      int
}

func (e *countingEngine) Evaluate(ctx context.Context, subjectID string) (*dto.EvaluationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evaluated = append(e.evaluated, subjectID)
	return &dto.EvaluationResult{SubjectID: subjectID, Outcome: dto.OutcomeNoSignal}, nil
}

func (e *countingEngine) RunAll(ctx context.Context) (*dto.RunSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs++
	return &dto.RunSummary{}, nil
}

func (e *countingEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.evaluated)
}

func TestAlertSchedulerNotifyDebounces(t *testing.T) {
	engine := &countingEngine{}
	scheduler := NewAlertScheduler(engine, cache.NewLocalLocker(), AlertSchedulerConfig{Debounce: time.Minute, QueueWorkers: 1, QueueBuffer: 4}, zap.NewNop())
	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	scheduler.Notify("s1")
	scheduler.Notify("s1")
	scheduler.Notify("s2")

	require.Eventually(t, func() bool { return engine.count() == 2 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, engine.count())
}

func TestAlertSchedulerNotifyWithoutDebounce(t *testing.T) {
	engine := &countingEngine{}
	scheduler := NewAlertScheduler(engine, nil, AlertSchedulerConfig{QueueWorkers: 1}, nil)
	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	scheduler.Notify("s1")
	scheduler.Notify("s1")
	scheduler.Notify("")

	require.Eventually(t, func() bool { return engine.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestAlertSchedulerNotifyBeforeStartIsDropped(t *testing.T) {
	engine := &countingEngine{}
	scheduler := NewAlertScheduler(engine, nil, AlertSchedulerConfig{}, nil)

	scheduler.Notify("s1")
	assert.Equal(t, 0, scheduler.QueueLen())
	assert.Equal(t, 0, engine.count())
}

func TestAlertSchedulerRejectsBadSpec(t *testing.T) {
	scheduler := NewAlertScheduler(&countingEngine{}, nil, AlertSchedulerConfig{Enabled: true, Spec: "every day"}, nil)

	err := scheduler.Start(context.Background())
	require.Error(t, err)
}

func TestAlertSchedulerScheduledRun(t *testing.T) {
	engine := &countingEngine{}
	scheduler := NewAlertScheduler(engine, nil, AlertSchedulerConfig{Enabled: true, Spec: "0 6 * * *"}, nil)
	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	scheduler.runScheduled()
	assert.Equal(t, 1, engine.runs)
}
