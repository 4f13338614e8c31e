package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
)

const foreignKeyViolation = "23503"

// QuestionnaireRepository implements questionnaire.Repository.
type QuestionnaireRepository struct {
	pool *pgxpool.Pool
}

func NewQuestionnaireRepository(pool *pgxpool.Pool) *QuestionnaireRepository {
	return &QuestionnaireRepository{pool: pool}
}

func (r *QuestionnaireRepository) Get(ctx context.Context, key questionnaire.Key) (*questionnaire.Response, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, client_id, questionnaire_id, answers, current_question_index, current_module_index, points, streak, combo, shown_milestones, completed, created_at, updated_at
		FROM questionnaire_responses WHERE client_id=$1 AND questionnaire_id=$2
	`, key.ClientID, key.QuestionnaireID)
	return scanResponse(row)
}

func (r *QuestionnaireRepository) Upsert(ctx context.Context, resp *questionnaire.Response) error {
	answers, err := json.Marshal(resp.Answers)
	if err != nil {
		return err
	}
	milestones, err := json.Marshal(resp.ShownMilestones)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return r.pool.QueryRow(ctx, `
		INSERT INTO questionnaire_responses
		(id, client_id, questionnaire_id, answers, current_question_index, current_module_index, points, streak, combo, shown_milestones, completed, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		ON CONFLICT (client_id, questionnaire_id) DO UPDATE SET
			answers=EXCLUDED.answers,
			current_question_index=EXCLUDED.current_question_index,
			current_module_index=EXCLUDED.current_module_index,
			points=EXCLUDED.points,
			streak=EXCLUDED.streak,
			combo=EXCLUDED.combo,
			shown_milestones=EXCLUDED.shown_milestones,
			completed=EXCLUDED.completed,
			updated_at=EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`, uuid.New(), resp.ClientID, resp.QuestionnaireID, answers, resp.CurrentQuestionIndex, resp.CurrentModuleIndex, resp.Points, resp.Streak, resp.Combo, milestones, resp.Completed, now,
	).Scan(&resp.ID, &resp.CreatedAt, &resp.UpdatedAt)
}

func (r *QuestionnaireRepository) InsertHistory(ctx context.Context, entry *questionnaire.HistoryEntry) error {
	snapshot, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO questionnaire_response_history (id, response_id, snapshot, recorded_at)
		VALUES ($1,$2,$3,$4)
	`, entry.ID, entry.ResponseID, snapshot, entry.RecordedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return questionnaire.ErrUnknownResponse
	}
	return err
}

func scanResponse(row pgx.Row) (*questionnaire.Response, error) {
	var resp questionnaire.Response
	var answers json.RawMessage
	var milestones json.RawMessage
	if err := row.Scan(&resp.ID, &resp.ClientID, &resp.QuestionnaireID, &answers, &resp.CurrentQuestionIndex, &resp.CurrentModuleIndex, &resp.Points, &resp.Streak, &resp.Combo, &milestones, &resp.Completed, &resp.CreatedAt, &resp.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(answers, &resp.Answers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(milestones, &resp.ShownMilestones); err != nil {
		return nil, err
	}
	return &resp, nil
}
