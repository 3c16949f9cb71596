package worker

import (
	"context"
	"testing"
	"time"
)

type countingWorker struct {
	runs int
	err  error
}

func (w *countingWorker) Name() string { return "counting" }

func (w *countingWorker) Run(ctx context.Context) error {
	w.runs++
	return w.err
}

func TestDailyWorkerFiresInWindow(t *testing.T) {
	w := &countingWorker{}
	dw := NewDailyWorker(w, 0, 0, 10*time.Minute)

	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	dw.fireAt(context.Background(), day.Add(-time.Minute))
	if w.runs != 0 {
		t.Fatalf("runs = %d before the scheduled moment, want 0", w.runs)
	}

	dw.fireAt(context.Background(), day.Add(2*time.Minute))
	if w.runs != 1 {
		t.Fatalf("runs = %d inside the grace window, want 1", w.runs)
	}

	// Same day never fires twice
	dw.fireAt(context.Background(), day.Add(5*time.Minute))
	if w.runs != 1 {
		t.Errorf("runs = %d on repeat check, want 1", w.runs)
	}

	// Next day fires again
	dw.fireAt(context.Background(), day.AddDate(0, 0, 1).Add(time.Minute))
	if w.runs != 2 {
		t.Errorf("runs = %d on the next day, want 2", w.runs)
	}
}

func TestDailyWorkerSkipsBeyondGrace(t *testing.T) {
	w := &countingWorker{}
	dw := NewDailyWorker(w, 0, 0, 10*time.Minute)

	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	dw.fireAt(context.Background(), day.Add(time.Hour))
	if w.runs != 0 {
		t.Fatalf("runs = %d beyond the grace window, want 0", w.runs)
	}

	// The missed day is consumed, not retried
	dw.fireAt(context.Background(), day.Add(2*time.Hour))
	if w.runs != 0 {
		t.Errorf("runs = %d on retry after miss, want 0", w.runs)
	}

	dw.fireAt(context.Background(), day.AddDate(0, 0, 1).Add(time.Minute))
	if w.runs != 1 {
		t.Errorf("runs = %d on the next day, want 1", w.runs)
	}
}

func TestWorkerGroupSize(t *testing.T) {
	group := NewWorkerGroup(context.Background())
	group.Add(&countingWorker{}, time.Hour)
	group.AddDaily(&countingWorker{}, 0, 0, 10*time.Minute)

	if group.Size() != 2 {
		t.Errorf("size = %d, want 2", group.Size())
	}
}
