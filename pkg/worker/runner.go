package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tradefork/engine/pkg/logger"
)

// Worker interface that background jobs should implement
type Worker interface {
	// Name returns worker name for logging
	Name() string
	// Run executes one iteration of work
	Run(ctx context.Context) error
}

// Runner is a startable, stoppable job wrapper
type Runner interface {
	Start(ctx context.Context)
	Stop(timeout time.Duration)
	WorkerName() string
}

// PeriodicWorker wraps a Worker with fixed-interval execution.
// A tick that arrives while the previous run is still in flight is
// dropped (the ticker channel holds at most one pending tick), so at
// most one execution per worker runs at any time.
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	wg       *sync.WaitGroup
	name     string
}

// NewPeriodicWorker creates new periodic worker
func NewPeriodicWorker(worker Worker, interval time.Duration) *PeriodicWorker {
	return &PeriodicWorker{
		worker:   worker,
		interval: interval,
		wg:       &sync.WaitGroup{},
		name:     worker.Name(),
	}
}

// WorkerName returns the wrapped worker name
func (pw *PeriodicWorker) WorkerName() string {
	return pw.name
}

// Start starts the worker with graceful shutdown support
func (pw *PeriodicWorker) Start(ctx context.Context) {
	pw.wg.Add(1)
	go pw.run(ctx)
}

// Stop waits for graceful shutdown
func (pw *PeriodicWorker) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		pw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("worker stopped gracefully",
			zap.String("worker", pw.name),
		)
	case <-time.After(timeout):
		logger.Warn("worker stop timeout",
			zap.String("worker", pw.name),
		)
	}
}

// run executes worker periodically
func (pw *PeriodicWorker) run(ctx context.Context) {
	defer pw.wg.Done()

	logger.Info("worker started",
		zap.String("worker", pw.name),
		zap.Duration("interval", pw.interval),
	)

	// Run immediately on start
	if err := pw.worker.Run(ctx); err != nil {
		logger.Error("worker execution failed",
			zap.String("worker", pw.name),
			zap.Error(err),
		)
	}

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping",
				zap.String("worker", pw.name),
			)
			return

		case <-ticker.C:
			if err := pw.worker.Run(ctx); err != nil {
				logger.Error("worker execution failed",
					zap.String("worker", pw.name),
					zap.Error(err),
				)
				// Continue despite error - don't crash worker
			}
		}
	}
}

// DailyWorker fires once per day at a fixed UTC hour:minute. A fire
// that is missed (process busy or just started) still runs if the
// scheduled moment is within the misfire grace, otherwise it is
// skipped until the next day.
type DailyWorker struct {
	worker        Worker
	hour          int
	minute        int
	misfireGrace  time.Duration
	lastFiredDate string
	wg            *sync.WaitGroup
	name          string
}

// NewDailyWorker creates a worker that runs daily at hour:minute UTC
func NewDailyWorker(worker Worker, hour, minute int, misfireGrace time.Duration) *DailyWorker {
	return &DailyWorker{
		worker:       worker,
		hour:         hour,
		minute:       minute,
		misfireGrace: misfireGrace,
		wg:           &sync.WaitGroup{},
		name:         worker.Name(),
	}
}

// WorkerName returns the wrapped worker name
func (dw *DailyWorker) WorkerName() string {
	return dw.name
}

// Start starts the worker
func (dw *DailyWorker) Start(ctx context.Context) {
	dw.wg.Add(1)
	go dw.run(ctx)
}

// Stop waits for graceful shutdown
func (dw *DailyWorker) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		dw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("worker stopped gracefully",
			zap.String("worker", dw.name),
		)
	case <-time.After(timeout):
		logger.Warn("worker stop timeout",
			zap.String("worker", dw.name),
		)
	}
}

func (dw *DailyWorker) run(ctx context.Context) {
	defer dw.wg.Done()

	logger.Info("daily worker started",
		zap.String("worker", dw.name),
		zap.Int("hour_utc", dw.hour),
		zap.Int("minute_utc", dw.minute),
	)

	// Check twice a minute so a fire point is never straddled
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping",
				zap.String("worker", dw.name),
			)
			return

		case <-ticker.C:
			dw.maybeFire(ctx)
		}
	}
}

func (dw *DailyWorker) maybeFire(ctx context.Context) {
	dw.fireAt(ctx, time.Now().UTC())
}

func (dw *DailyWorker) fireAt(ctx context.Context, now time.Time) {
	today := now.Format("2006-01-02")
	if dw.lastFiredDate == today {
		return
	}

	scheduled := time.Date(now.Year(), now.Month(), now.Day(), dw.hour, dw.minute, 0, 0, time.UTC)
	if now.Before(scheduled) {
		return
	}

	if now.Sub(scheduled) > dw.misfireGrace {
		logger.Warn("daily fire missed beyond grace, skipping until tomorrow",
			zap.String("worker", dw.name),
			zap.Time("scheduled", scheduled),
		)
		dw.lastFiredDate = today
		return
	}

	dw.lastFiredDate = today
	if err := dw.worker.Run(ctx); err != nil {
		logger.Error("worker execution failed",
			zap.String("worker", dw.name),
			zap.Error(err),
		)
	}
}

// WorkerGroup manages multiple runners with graceful shutdown
type WorkerGroup struct {
	runners []Runner
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
}

// NewWorkerGroup creates new worker group
func NewWorkerGroup(ctx context.Context) *WorkerGroup {
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerGroup{
		runners: make([]Runner, 0),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add adds a fixed-interval worker to the group
func (wg *WorkerGroup) Add(worker Worker, interval time.Duration) {
	wg.mu.Lock()
	defer wg.mu.Unlock()

	wg.runners = append(wg.runners, NewPeriodicWorker(worker, interval))
}

// AddDaily adds a daily-at-UTC worker to the group
func (wg *WorkerGroup) AddDaily(worker Worker, hour, minute int, misfireGrace time.Duration) {
	wg.mu.Lock()
	defer wg.mu.Unlock()

	wg.runners = append(wg.runners, NewDailyWorker(worker, hour, minute, misfireGrace))
}

// Start starts all workers
func (wg *WorkerGroup) Start() {
	wg.mu.Lock()
	defer wg.mu.Unlock()

	for _, r := range wg.runners {
		r.Start(wg.ctx)
	}

	logger.Info("worker group started",
		zap.Int("workers", len(wg.runners)),
	)
}

// Stop stops all workers gracefully
func (wg *WorkerGroup) Stop(timeout time.Duration) {
	logger.Info("stopping worker group...",
		zap.Int("workers", len(wg.runners)),
	)

	// Cancel context first so no new ticks fire
	wg.cancel()

	wg.mu.Lock()
	defer wg.mu.Unlock()

	for _, r := range wg.runners {
		r.Stop(timeout)
	}

	logger.Info("worker group stopped")
}

// Size returns the number of registered workers
func (wg *WorkerGroup) Size() int {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return len(wg.runners)
}
