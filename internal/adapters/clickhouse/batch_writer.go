package clickhouse

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tradefork/engine/pkg/logger"
)

// BatchWriter buffers records and writes them via repository in batches
type BatchWriter struct {
	repo        *Repository
	buffer      []interface{}
	bufferMu    sync.Mutex
	maxBatch    int
	flushTicker *time.Ticker
	flushFunc   func(context.Context, *Repository, []interface{}) error
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewBatchWriter creates new batch writer
func NewBatchWriter(
	repo *Repository,
	maxBatch int,
	maxWait time.Duration,
	flushFunc func(context.Context, *Repository, []interface{}) error,
) *BatchWriter {
	ctx, cancel := context.WithCancel(context.Background())

	bw := &BatchWriter{
		repo:      repo,
		buffer:    make([]interface{}, 0, maxBatch),
		maxBatch:  maxBatch,
		flushFunc: flushFunc,
		ctx:       ctx,
		cancel:    cancel,
	}

	bw.flushTicker = time.NewTicker(maxWait)

	bw.wg.Add(1)
	go bw.autoFlush()

	return bw
}

// Add adds record to buffer
func (bw *BatchWriter) Add(record interface{}) {
	bw.bufferMu.Lock()
	bw.buffer = append(bw.buffer, record)
	shouldFlush := len(bw.buffer) >= bw.maxBatch
	bw.bufferMu.Unlock()

	if shouldFlush {
		bw.flush()
	}
}

func (bw *BatchWriter) autoFlush() {
	defer bw.wg.Done()

	for {
		select {
		case <-bw.flushTicker.C:
			bw.flush()
		case <-bw.ctx.Done():
			// Final flush before exit
			bw.flush()
			return
		}
	}
}

func (bw *BatchWriter) flush() {
	bw.bufferMu.Lock()
	if len(bw.buffer) == 0 {
		bw.bufferMu.Unlock()
		return
	}

	toWrite := make([]interface{}, len(bw.buffer))
	copy(toWrite, bw.buffer)
	bw.buffer = bw.buffer[:0]
	bw.bufferMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := bw.flushFunc(ctx, bw.repo, toWrite); err != nil {
		logger.Error("failed to flush batch to clickhouse",
			zap.Int("records", len(toWrite)),
			zap.Error(err),
		)
		return
	}

	logger.Debug("flushed batch to clickhouse",
		zap.Int("records", len(toWrite)),
	)
}

// Close stops the writer and flushes remaining data
func (bw *BatchWriter) Close() error {
	bw.flushTicker.Stop()
	bw.cancel()
	bw.wg.Wait()
	return nil
}

// UsageWriter is the batch writer for model usage accounting. A nil
// UsageWriter is a valid no-op sink.
type UsageWriter struct {
	*BatchWriter
}

// NewUsageWriter creates batch writer for LLM usage rows
func NewUsageWriter(repo *Repository, maxBatch int, maxWait time.Duration) *UsageWriter {
	flushFunc := func(ctx context.Context, r *Repository, records []interface{}) error {
		rows := make([]LLMUsageRecord, len(records))
		for i, record := range records {
			rows[i] = record.(LLMUsageRecord)
		}
		return r.SaveLLMUsage(ctx, rows)
	}

	return &UsageWriter{BatchWriter: NewBatchWriter(repo, maxBatch, maxWait, flushFunc)}
}

// AddUsage buffers one usage row; safe on a nil writer
func (uw *UsageWriter) AddUsage(rec LLMUsageRecord) {
	if uw == nil {
		return
	}
	uw.Add(rec)
}

// OutcomeWriter is the batch writer for signal outcomes
type OutcomeWriter struct {
	*BatchWriter
}

// NewOutcomeWriter creates batch writer for signal outcome rows
func NewOutcomeWriter(repo *Repository, maxBatch int, maxWait time.Duration) *OutcomeWriter {
	flushFunc := func(ctx context.Context, r *Repository, records []interface{}) error {
		rows := make([]SignalOutcomeRecord, len(records))
		for i, record := range records {
			rows[i] = record.(SignalOutcomeRecord)
		}
		return r.SaveSignalOutcomes(ctx, rows)
	}

	return &OutcomeWriter{BatchWriter: NewBatchWriter(repo, maxBatch, maxWait, flushFunc)}
}

// AddOutcome buffers one outcome row; safe on a nil writer
func (ow *OutcomeWriter) AddOutcome(rec SignalOutcomeRecord) {
	if ow == nil {
		return
	}
	ow.Add(rec)
}
