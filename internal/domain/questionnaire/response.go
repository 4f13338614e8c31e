package questionnaire

import (
	"time"

	"github.com/google/uuid"
)

// Response is the server's authoritative copy of a session, one row per key.
type Response struct {
	ID                   uuid.UUID         `json:"id"`
	ClientID             string            `json:"client_id"`
	QuestionnaireID      string            `json:"questionnaire_id"`
	Answers              map[string]Answer `json:"answers"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	CurrentModuleIndex   int               `json:"current_module_index"`
	Points               int               `json:"points"`
	Streak               int               `json:"streak"`
	Combo                int               `json:"combo"`
	ShownMilestones      []int             `json:"shown_milestones"`
	Completed            bool              `json:"completed"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// NewResponse builds a record for key carrying st. ID and timestamps are
// assigned by the repository on upsert.
func NewResponse(key Key, st State) *Response {
	st = st.Normalize()
	return &Response{
		ClientID:             key.ClientID,
		QuestionnaireID:      key.QuestionnaireID,
		Answers:              st.Answers,
		CurrentQuestionIndex: st.CurrentQuestionIndex,
		CurrentModuleIndex:   st.CurrentModuleIndex,
		Points:               st.Points,
		Streak:               st.Streak,
		Combo:                st.Combo,
		ShownMilestones:      st.ShownMilestones,
		Completed:            st.Completed,
	}
}

func (r *Response) Key() Key {
	return Key{ClientID: r.ClientID, QuestionnaireID: r.QuestionnaireID}
}

// State extracts the session state; missing collections come back empty.
func (r *Response) State() State {
	return State{
		Answers:              r.Answers,
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		CurrentModuleIndex:   r.CurrentModuleIndex,
		Points:               r.Points,
		Streak:               r.Streak,
		Combo:                r.Combo,
		ShownMilestones:      r.ShownMilestones,
		Completed:            r.Completed,
	}.Normalize()
}

// HistoryEntry is an append-only audit snapshot written after each upsert.
type HistoryEntry struct {
	ID         uuid.UUID `json:"id"`
	ResponseID uuid.UUID `json:"response_id"`
	Snapshot   State     `json:"snapshot"`
	RecordedAt time.Time `json:"recorded_at"`
}

func NewHistoryEntry(resp *Response) *HistoryEntry {
	return &HistoryEntry{
		ID:         uuid.New(),
		ResponseID: resp.ID,
		Snapshot:   resp.State(),
		RecordedAt: time.Now().UTC(),
	}
}
