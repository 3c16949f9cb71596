package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (f *fakePinger) Health() error { return f.err }

type fakeScheduler struct{ running bool }

func (f *fakeScheduler) Running() bool { return f.running }

type fakeUserCounter struct {
	count int
	err   error
}

func (f *fakeUserCounter) CountActiveUsers(ctx context.Context) (int, error) {
	return f.count, f.err
}

type healthFixture struct {
	db        *fakePinger
	redis     *fakePinger
	scheduler *fakeScheduler
	users     *fakeUserCounter
	server    *Server
}

func newHealthFixture() *healthFixture {
	f := &healthFixture{
		db:        &fakePinger{},
		redis:     &fakePinger{},
		scheduler: &fakeScheduler{running: true},
		users:     &fakeUserCounter{count: 3},
	}
	f.server = NewServer("8080", f.db, f.redis, f.scheduler, f.users)
	return f
}

func TestHealthAlwaysOK(t *testing.T) {
	f := newHealthFixture()
	f.db.err = errors.New("db down")

	rec := httptest.NewRecorder()
	f.server.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != 200 {
		t.Errorf("status = %d, want 200 even with dependencies down", rec.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("status = %q", status.Status)
	}
	if status.Checks != nil {
		t.Errorf("checks = %v, want omitted without verbose", status.Checks)
	}
}

func TestHealthVerboseIncludesChecks(t *testing.T) {
	f := newHealthFixture()
	f.redis.err = errors.New("redis down")

	rec := httptest.NewRecorder()
	f.server.handleHealth(rec, httptest.NewRequest("GET", "/health?verbose=true", nil))

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if status.Checks["database"] != "healthy" {
		t.Errorf("database = %q", status.Checks["database"])
	}
	if status.Checks["redis"] != "unhealthy: redis down" {
		t.Errorf("redis = %q", status.Checks["redis"])
	}
}

func TestReadinessRequiresSetReady(t *testing.T) {
	f := newHealthFixture()

	rec := httptest.NewRecorder()
	f.server.handleReadiness(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != 503 {
		t.Errorf("status = %d, want 503 before SetReady", rec.Code)
	}

	f.server.SetReady(true)
	rec = httptest.NewRecorder()
	f.server.handleReadiness(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != 200 {
		t.Errorf("status = %d, want 200 after SetReady", rec.Code)
	}

	var status ReadinessStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !status.Ready || !status.SchedulerRunning {
		t.Errorf("ready=%v scheduler=%v, want both true", status.Ready, status.SchedulerRunning)
	}
	if status.ActiveUsers != 3 {
		t.Errorf("active users = %d, want 3", status.ActiveUsers)
	}
}

func TestReadinessFailsOnDependencyOutage(t *testing.T) {
	f := newHealthFixture()
	f.server.SetReady(true)
	f.db.err = errors.New("connection refused")

	rec := httptest.NewRecorder()
	f.server.handleReadiness(rec, httptest.NewRequest("GET", "/ready", nil))

	if rec.Code != 503 {
		t.Errorf("status = %d, want 503 when database is down", rec.Code)
	}

	var status ReadinessStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if status.Ready {
		t.Error("ready = true, want false")
	}
	if status.Checks["database"] != "unhealthy: connection refused" {
		t.Errorf("database = %q", status.Checks["database"])
	}
}

func TestReadinessToleratesCountError(t *testing.T) {
	f := newHealthFixture()
	f.server.SetReady(true)
	f.users.err = errors.New("query failed")

	rec := httptest.NewRecorder()
	f.server.handleReadiness(rec, httptest.NewRequest("GET", "/ready", nil))

	if rec.Code != 200 {
		t.Errorf("status = %d, a count error must not flip readiness", rec.Code)
	}
}
