// Package sqlite provides a single-file questionnaire repository for
// deployments without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
	"github.com/resume-services/questionnaire-hub/internal/infrastructure/sqlite/migrations"
)

// Store implements questionnaire.Repository on SQLite.
type Store struct {
	db *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key questionnaire.Key) (*questionnaire.Response, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, questionnaire_id, answers, current_question_index, current_module_index, points, streak, combo, shown_milestones, completed, created_at, updated_at
		FROM questionnaire_responses WHERE client_id = ? AND questionnaire_id = ?
	`, key.ClientID, key.QuestionnaireID)

	var (
		resp       questionnaire.Response
		id         string
		answers    string
		milestones string
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(&id, &resp.ClientID, &resp.QuestionnaireID, &answers, &resp.CurrentQuestionIndex, &resp.CurrentModuleIndex, &resp.Points, &resp.Streak, &resp.Combo, &milestones, &resp.Completed, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get questionnaire response: %w", err)
	}
	if resp.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse response id: %w", err)
	}
	if err := json.Unmarshal([]byte(answers), &resp.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal([]byte(milestones), &resp.ShownMilestones); err != nil {
		return nil, fmt.Errorf("decode milestones: %w", err)
	}
	resp.CreatedAt = fromMillis(createdAt)
	resp.UpdatedAt = fromMillis(updatedAt)
	return &resp, nil
}

func (s *Store) Upsert(ctx context.Context, resp *questionnaire.Response) error {
	answers, err := json.Marshal(resp.Answers)
	if err != nil {
		return err
	}
	milestones, err := json.Marshal(resp.ShownMilestones)
	if err != nil {
		return err
	}
	now := toMillis(time.Now())

	var (
		id        string
		createdAt int64
		updatedAt int64
	)
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO questionnaire_responses
		(id, client_id, questionnaire_id, answers, current_question_index, current_module_index, points, streak, combo, shown_milestones, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id, questionnaire_id) DO UPDATE SET
			answers = excluded.answers,
			current_question_index = excluded.current_question_index,
			current_module_index = excluded.current_module_index,
			points = excluded.points,
			streak = excluded.streak,
			combo = excluded.combo,
			shown_milestones = excluded.shown_milestones,
			completed = excluded.completed,
			updated_at = excluded.updated_at
		RETURNING id, created_at, updated_at
	`, uuid.NewString(), resp.ClientID, resp.QuestionnaireID, string(answers), resp.CurrentQuestionIndex, resp.CurrentModuleIndex, resp.Points, resp.Streak, resp.Combo, string(milestones), resp.Completed, now, now,
	).Scan(&id, &createdAt, &updatedAt)
	if err != nil {
		return fmt.Errorf("upsert questionnaire response: %w", err)
	}
	if resp.ID, err = uuid.Parse(id); err != nil {
		return fmt.Errorf("parse response id: %w", err)
	}
	resp.CreatedAt = fromMillis(createdAt)
	resp.UpdatedAt = fromMillis(updatedAt)
	return nil
}

func (s *Store) InsertHistory(ctx context.Context, entry *questionnaire.HistoryEntry) error {
	snapshot, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO questionnaire_response_history (id, response_id, snapshot, recorded_at)
		VALUES (?, ?, ?, ?)
	`, entry.ID.String(), entry.ResponseID.String(), string(snapshot), toMillis(entry.RecordedAt))
	if isForeignKeyViolation(err) {
		return questionnaire.ErrUnknownResponse
	}
	if err != nil {
		return fmt.Errorf("insert response history: %w", err)
	}
	return nil
}

// HistoryCount returns how many snapshots were recorded for a response.
func (s *Store) HistoryCount(ctx context.Context, responseID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questionnaire_response_history WHERE response_id = ?`, responseID.String()).Scan(&n)
	return n, err
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}
