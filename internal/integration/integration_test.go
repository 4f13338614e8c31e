//go:build integration
// +build integration

package integration

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	httpapi "github.com/resume-services/questionnaire-hub/internal/api/http"
	appQuestionnaire "github.com/resume-services/questionnaire-hub/internal/application/questionnaire"
	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
	"github.com/resume-services/questionnaire-hub/internal/infrastructure/devicestore"
	"github.com/resume-services/questionnaire-hub/internal/infrastructure/postgres"
	"github.com/resume-services/questionnaire-hub/internal/qsync/localstore"
	"github.com/resume-services/questionnaire-hub/internal/qsync/retry"
	"github.com/resume-services/questionnaire-hub/internal/qsync/session"
	"github.com/resume-services/questionnaire-hub/internal/qsync/transport"
)

func TestRepositoryIntegration(t *testing.T) {
	pool := newTestPool(t)
	repo := postgres.NewQuestionnaireRepository(pool)
	ctx := context.Background()
	key := questionnaire.Key{ClientID: "client-1", QuestionnaireID: "discovery"}

	got, err := repo.Get(ctx, key)
	if err != nil || got != nil {
		t.Fatalf("expected no row, got %v %v", got, err)
	}

	st := questionnaire.Default()
	st.Answers["role"] = questionnaire.TextAnswer("engineer")
	st.Answers["skills"] = questionnaire.MultiAnswer("go", "sql")
	st.Points = 20
	st.ShownMilestones = []int{25}
	first := questionnaire.NewResponse(key, st)
	if err := repo.Upsert(ctx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	st.Points = 30
	second := questionnaire.NewResponse(key, st)
	if err := repo.Upsert(ctx, second); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected upsert to keep row id %s, got %s", first.ID, second.ID)
	}

	got, err = repo.Get(ctx, key)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Points != 30 || len(got.Answers) != 2 || got.Answers["skills"].Values()[1] != "sql" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if len(got.ShownMilestones) != 1 || got.ShownMilestones[0] != 25 {
		t.Fatalf("unexpected milestones: %v", got.ShownMilestones)
	}

	if err := repo.InsertHistory(ctx, questionnaire.NewHistoryEntry(got)); err != nil {
		t.Fatalf("insert history: %v", err)
	}
	orphan := &questionnaire.Response{ID: uuid.New()}
	if err := repo.InsertHistory(ctx, questionnaire.NewHistoryEntry(orphan)); err != questionnaire.ErrUnknownResponse {
		t.Fatalf("expected ErrUnknownResponse, got %v", err)
	}
}

func TestTwoDevicesConvergeIntegration(t *testing.T) {
	pool := newTestPool(t)
	svc := appQuestionnaire.NewService(postgres.NewQuestionnaireRepository(pool), time.Second, zerolog.Nop())
	server := httptest.NewServer(httpapi.NewServer(svc, zerolog.Nop()).Router())
	defer func() {
		server.Close()
		svc.Drain()
	}()

	key := questionnaire.Key{ClientID: "client-" + uuid.NewString()[:8], QuestionnaireID: "discovery"}

	laptop := newDevice(t, server.URL, key)
	laptop.Start()
	waitReady(t, laptop)
	laptop.UpdateState(questionnaire.Partial{
		Answers: map[string]questionnaire.Answer{
			"q1": questionnaire.TextAnswer("a"),
			"q2": questionnaire.TextAnswer("b"),
			"q3": questionnaire.MultiAnswer("x", "y"),
		},
		CurrentQuestionIndex: questionnaire.Int(3),
		Points:               questionnaire.Int(30),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := laptop.ForceSync(ctx)
	if err != nil || report.Status != retry.StatusOnline {
		t.Fatalf("laptop sync: %+v %v", report, err)
	}

	phone := newDevice(t, server.URL, key)
	phone.Start()
	waitReady(t, phone)
	if got := phone.State(); got.AnswerCount() != 3 || got.Points != 30 {
		t.Fatalf("phone did not pick up server state: %+v", got)
	}
	if phone.Status().LastSyncedAt.IsZero() {
		t.Fatal("expected lastSyncedAt after loading a server record")
	}
}

func newDevice(t *testing.T, baseURL string, key questionnaire.Key) *session.Manager {
	t.Helper()
	m := session.New(session.Options{
		Key:            key,
		Local:          localstore.New(devicestore.NewMemory(5<<20), key, zerolog.Nop()),
		Remote:         transport.NewClient(transport.Config{BaseURL: baseURL, Timeout: 2 * time.Second}, key, zerolog.Nop()),
		Clock:          clockwork.NewRealClock(),
		LocalSaveDelay: 10 * time.Millisecond,
		SyncDelay:      50 * time.Millisecond,
		Retry:          retry.DefaultConfig(),
		Logger:         zerolog.Nop(),
	})
	t.Cleanup(m.Close)
	return m
}

func waitReady(t *testing.T, m *session.Manager) {
	t.Helper()
	select {
	case <-m.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("session never finished loading")
	}
}

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := testDatabaseURL(t)
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("db pool: %v", err)
	}
	t.Cleanup(pool.Close)

	migrations := filepath.Join(repoRoot(t), "internal", "migrations")
	for i := 0; i < 2; i++ {
		if err := postgres.RunMigrations(ctx, pool, migrations); err != nil {
			t.Fatalf("migrations (run %d): %v", i+1, err)
		}
	}
	if err := resetDatabase(ctx, pool); err != nil {
		t.Fatalf("reset db: %v", err)
	}
	return pool
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	return ""
}

func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}

func resetDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE TABLE
			questionnaire_response_history,
			questionnaire_responses
		CASCADE
	`)
	return err
}
