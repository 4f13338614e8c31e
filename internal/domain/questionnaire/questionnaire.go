package questionnaire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// DefaultQuestionnaireID is used when a caller does not name a questionnaire.
const DefaultQuestionnaireID = "discovery"

var (
	ErrInvalidKey    = errors.New("invalid questionnaire key")
	ErrInvalidAnswer = errors.New("answer must be a string or a list of strings")
	ErrInvalidState  = errors.New("invalid questionnaire state")
)

var idPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Key identifies one client's copy of one questionnaire.
type Key struct {
	ClientID        string `json:"clientId"`
	QuestionnaireID string `json:"questionnaireId"`
}

// NewKey validates both identifiers. An empty questionnaireID falls back to
// DefaultQuestionnaireID.
func NewKey(clientID, questionnaireID string) (Key, error) {
	if questionnaireID == "" {
		questionnaireID = DefaultQuestionnaireID
	}
	if !idPattern.MatchString(clientID) {
		return Key{}, fmt.Errorf("%w: client id %q", ErrInvalidKey, clientID)
	}
	if !idPattern.MatchString(questionnaireID) {
		return Key{}, fmt.Errorf("%w: questionnaire id %q", ErrInvalidKey, questionnaireID)
	}
	return Key{ClientID: clientID, QuestionnaireID: questionnaireID}, nil
}

// StorageKey is the device-local key the state is persisted under.
func (k Key) StorageKey() string {
	return "questionnaire_" + k.QuestionnaireID + "_" + k.ClientID
}

func (k Key) String() string {
	return k.ClientID + "/" + k.QuestionnaireID
}

// Answer is either free text or the ordered selections of a multi-select question.
type Answer struct {
	text    string
	choices []string
	multi   bool
}

func TextAnswer(text string) Answer {
	return Answer{text: text}
}

func MultiAnswer(choices ...string) Answer {
	out := make([]string, len(choices))
	copy(out, choices)
	return Answer{choices: out, multi: true}
}

func (a Answer) IsMulti() bool { return a.multi }

// Value returns the text of a single answer, or the selections joined by ", ".
func (a Answer) Value() string {
	if !a.multi {
		return a.text
	}
	var buf bytes.Buffer
	for i, c := range a.choices {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(c)
	}
	return buf.String()
}

// Values returns a copy of the selections; a text answer yields one element.
func (a Answer) Values() []string {
	if !a.multi {
		return []string{a.text}
	}
	out := make([]string, len(a.choices))
	copy(out, a.choices)
	return out
}

func (a Answer) clone() Answer {
	if !a.multi {
		return a
	}
	return MultiAnswer(a.choices...)
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.multi {
		if a.choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.choices)
	}
	return json.Marshal(a.text)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrInvalidAnswer
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = TextAnswer(s)
		return nil
	case '[':
		var choices []string
		if err := json.Unmarshal(data, &choices); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
		}
		*a = MultiAnswer(choices...)
		return nil
	default:
		return ErrInvalidAnswer
	}
}

// State is the full answer and progress snapshot of one session.
type State struct {
	Answers              map[string]Answer `json:"answers"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	CurrentModuleIndex   int               `json:"currentModuleIndex"`
	Points               int               `json:"points"`
	Streak               int               `json:"streak"`
	Combo                int               `json:"combo"`
	ShownMilestones      []int             `json:"shownMilestones"`
	Completed            bool              `json:"completed"`
}

// Default returns the empty state a brand new session starts from.
func Default() State {
	return State{
		Answers:         map[string]Answer{},
		ShownMilestones: []int{},
	}
}

// Clone returns a deep copy so snapshots never share maps or slices.
func (s State) Clone() State {
	out := s
	out.Answers = make(map[string]Answer, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v.clone()
	}
	out.ShownMilestones = make([]int, len(s.ShownMilestones))
	copy(out.ShownMilestones, s.ShownMilestones)
	return out
}

// Normalize replaces nil collections with empty ones, drops duplicate
// milestones and raises negative counters to zero.
func (s State) Normalize() State {
	out := s.Clone()
	out.CurrentQuestionIndex = nonNegative(out.CurrentQuestionIndex)
	out.CurrentModuleIndex = nonNegative(out.CurrentModuleIndex)
	out.Points = nonNegative(out.Points)
	out.Streak = nonNegative(out.Streak)
	out.Combo = nonNegative(out.Combo)
	seen := make(map[int]struct{}, len(out.ShownMilestones))
	milestones := out.ShownMilestones[:0]
	for _, m := range out.ShownMilestones {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		milestones = append(milestones, m)
	}
	out.ShownMilestones = milestones
	return out
}

// Validate rejects negative positions and counters.
func (s State) Validate() error {
	counters := []struct {
		name  string
		value int
	}{
		{"currentQuestionIndex", s.CurrentQuestionIndex},
		{"currentModuleIndex", s.CurrentModuleIndex},
		{"points", s.Points},
		{"streak", s.Streak},
		{"combo", s.Combo},
	}
	for _, c := range counters {
		if c.value < 0 {
			return fmt.Errorf("%w: %s is negative (%d)", ErrInvalidState, c.name, c.value)
		}
	}
	return nil
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// AnswerCount is the number of answered questions.
func (s State) AnswerCount() int {
	return len(s.Answers)
}

// Partial is a shallow update: nil fields are left untouched, a non-nil
// Answers map replaces the whole answer set.
type Partial struct {
	Answers              map[string]Answer
	CurrentQuestionIndex *int
	CurrentModuleIndex   *int
	Points               *int
	Streak               *int
	Combo                *int
	ShownMilestones      []int
	Completed            *bool
}

// Merge applies p on top of a copy of s. Negative counters in p become zero.
func (s State) Merge(p Partial) State {
	out := s.Clone()
	if p.Answers != nil {
		out.Answers = make(map[string]Answer, len(p.Answers))
		for k, v := range p.Answers {
			out.Answers[k] = v.clone()
		}
	}
	if p.CurrentQuestionIndex != nil {
		out.CurrentQuestionIndex = nonNegative(*p.CurrentQuestionIndex)
	}
	if p.CurrentModuleIndex != nil {
		out.CurrentModuleIndex = nonNegative(*p.CurrentModuleIndex)
	}
	if p.Points != nil {
		out.Points = nonNegative(*p.Points)
	}
	if p.Streak != nil {
		out.Streak = nonNegative(*p.Streak)
	}
	if p.Combo != nil {
		out.Combo = nonNegative(*p.Combo)
	}
	if p.ShownMilestones != nil {
		out.ShownMilestones = make([]int, len(p.ShownMilestones))
		copy(out.ShownMilestones, p.ShownMilestones)
	}
	if p.Completed != nil {
		out.Completed = *p.Completed
	}
	return out
}

// MoreAdvanced reports whether a has strictly more progress than b: more
// answers first, then higher points, then a later question index.
func MoreAdvanced(a, b State) bool {
	if a.AnswerCount() != b.AnswerCount() {
		return a.AnswerCount() > b.AnswerCount()
	}
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	return a.CurrentQuestionIndex > b.CurrentQuestionIndex
}

// Int and Bool build Partial fields inline.
func Int(v int) *int { return &v }

func Bool(v bool) *bool { return &v }
