package backend_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/montybuilt/MPS-sub000/internal/backend"
	"github.com/montybuilt/MPS-sub000/internal/curriculum"
	"github.com/montybuilt/MPS-sub000/internal/eventlog"
	"github.com/montybuilt/MPS-sub000/internal/platform/database"
	"github.com/montybuilt/MPS-sub000/internal/progress"
)

func TestNewPostgresBackend_NilPool(t *testing.T) {
	if _, err := backend.NewPostgresBackend(nil); err == nil {
		t.Error("expected error for nil pool")
	}
}

func TestPostgresBackend_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("mps"),
		postgres.WithUsername("mps"),
		postgres.WithPassword("mps"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}
	db, err := database.New(ctx, url, 4, 1)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	b, err := backend.NewPostgresBackend(db.Pool)
	if err != nil {
		t.Fatalf("NewPostgresBackend() error = %v", err)
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "pcap.yaml"), []byte(`
content_id: pcap
curricula:
  - id: C1
    tasks:
      - task_key: t1
        difficulty: 6
        standard: 1
        objective: 1
        tags: [modules]
        question: "Which import?"
        answer: "from math import sqrt"
      - task_key: t2
        difficulty: 3
        standard: 1
        objective: 2
`), 0o644)
	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if err := b.Import(ctx, loader, []string{"alice"}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	// Re-import is idempotent.
	if err := b.Import(ctx, loader, []string{"alice"}); err != nil {
		t.Fatalf("second Import() error = %v", err)
	}

	bundle, err := b.FetchProfile(ctx, backend.ProfileRequest{ProfileOwner: "alice", LastUpdateWatermark: eventlog.Epoch})
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	tasks := bundle.UserAssignments["pcap"]["C1"]
	if len(tasks) != 2 || tasks[0].TaskKey != "t1" || tasks[0].Difficulty != 6 || tasks[0].Tags[0] != "modules" {
		t.Fatalf("assignments = %+v", bundle.UserAssignments)
	}
	if len(bundle.XPData) != 0 || bundle.XPLastFetchedDatetime != eventlog.Epoch {
		t.Errorf("fresh profile = %+v", bundle)
	}

	keys, err := b.FetchCurriculumTasks(ctx, "C1")
	if err != nil || len(keys) != 2 || keys[1] != "t2" {
		t.Errorf("FetchCurriculumTasks() = %v, %v", keys, err)
	}
	if _, err := b.FetchCurriculumTasks(ctx, "nope"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("FetchCurriculumTasks(nope) error = %v, want ErrNotFound", err)
	}

	q, err := b.FetchQuestion(ctx, "t1")
	if err != nil || q.Answer != "from math import sqrt" {
		t.Errorf("FetchQuestion() = %+v, %v", q, err)
	}
	if _, err := b.FetchQuestion(ctx, "nope"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("FetchQuestion(nope) error = %v, want ErrNotFound", err)
	}

	attempt := progress.AttemptRecord{
		QuestionID: "t1", ContentID: "pcap", CurriculumID: "C1",
		Standard: "1", Objective: "1", DXP: 2, Timestamp: "2024-05-01T10:00:00Z",
	}
	snap := backend.SessionSnapshot{XP: 2, XPData: []progress.AttemptRecord{attempt}}
	if err := b.SubmitSession(ctx, "alice", snap); err != nil {
		t.Fatalf("SubmitSession() error = %v", err)
	}
	// A repeated flush of the same attempt is ignored.
	if err := b.SubmitSession(ctx, "alice", snap); err != nil {
		t.Fatalf("second SubmitSession() error = %v", err)
	}

	delta, err := b.FetchProfile(ctx, backend.ProfileRequest{ProfileOwner: "alice", LastUpdateWatermark: eventlog.Epoch})
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	if len(delta.XPData) != 1 || delta.XPData[0].DXP != 2 || delta.XPData[0].Standard != "1" {
		t.Fatalf("XPData = %+v", delta.XPData)
	}
	if delta.XPLastFetchedDatetime == eventlog.Epoch {
		t.Error("watermark did not advance")
	}

	empty, err := b.FetchProfile(ctx, backend.ProfileRequest{ProfileOwner: "alice", LastUpdateWatermark: delta.XPLastFetchedDatetime})
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	if len(empty.XPData) != 0 {
		t.Errorf("delta after watermark = %d records, want 0", len(empty.XPData))
	}
}
