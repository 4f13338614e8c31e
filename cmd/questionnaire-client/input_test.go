package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		line string
		kind commandKind
	}{
		{"", cmdNone},
		{"  :sync ", cmdSync},
		{":online", cmdOnline},
		{":offline", cmdOffline},
		{":done", cmdDone},
		{":status", cmdStatus},
	}
	for _, tc := range cases {
		cmd, err := parseLine(tc.line)
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.kind, cmd.kind, tc.line)
	}
}

func TestParseAnswers(t *testing.T) {
	cmd, err := parseLine("role = engineer")
	require.NoError(t, err)
	assert.Equal(t, cmdAnswer, cmd.kind)
	assert.Equal(t, "role", cmd.questionID)
	assert.False(t, cmd.answer.IsMulti())
	assert.Equal(t, "engineer", cmd.answer.Value())

	cmd, err = parseLine("skills=go| sql ||")
	require.NoError(t, err)
	assert.True(t, cmd.answer.IsMulti())
	assert.Equal(t, []string{"go", "sql"}, cmd.answer.Values())
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, line := range []string{"hello", "=x", ":reboot"} {
		_, err := parseLine(line)
		assert.ErrorIs(t, err, errUnknownCommand, line)
	}
}

func TestAnswerPartial(t *testing.T) {
	st := questionnaire.Default()
	st = st.Merge(answerPartial(st, "q1", questionnaire.TextAnswer("a")))
	assert.Equal(t, 1, st.AnswerCount())
	assert.Equal(t, 1, st.CurrentQuestionIndex)
	assert.Equal(t, pointsPerAnswer, st.Points)

	// re-answering replaces without awarding again
	st = st.Merge(answerPartial(st, "q1", questionnaire.TextAnswer("b")))
	assert.Equal(t, 1, st.AnswerCount())
	assert.Equal(t, "b", st.Answers["q1"].Value())
	assert.Equal(t, pointsPerAnswer, st.Points)
	assert.Equal(t, 1, st.Streak)
}
