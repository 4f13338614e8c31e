package main

import (
	"errors"
	"strings"

	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdAnswer
	cmdSync
	cmdOnline
	cmdOffline
	cmdDone
	cmdStatus
)

var errUnknownCommand = errors.New("expected questionId=answer or one of :sync :online :offline :done :status")

type command struct {
	kind       commandKind
	questionID string
	answer     questionnaire.Answer
}

// parseLine reads one stdin line. "q=a|b" is a multi-select answer.
func parseLine(line string) (command, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return command{kind: cmdNone}, nil
	case ":sync":
		return command{kind: cmdSync}, nil
	case ":online":
		return command{kind: cmdOnline}, nil
	case ":offline":
		return command{kind: cmdOffline}, nil
	case ":done":
		return command{kind: cmdDone}, nil
	case ":status":
		return command{kind: cmdStatus}, nil
	}

	id, value, ok := strings.Cut(line, "=")
	id = strings.TrimSpace(id)
	if !ok || id == "" || strings.HasPrefix(id, ":") {
		return command{}, errUnknownCommand
	}
	value = strings.TrimSpace(value)
	if !strings.Contains(value, "|") {
		return command{kind: cmdAnswer, questionID: id, answer: questionnaire.TextAnswer(value)}, nil
	}
	var choices []string
	for _, c := range strings.Split(value, "|") {
		if c = strings.TrimSpace(c); c != "" {
			choices = append(choices, c)
		}
	}
	return command{kind: cmdAnswer, questionID: id, answer: questionnaire.MultiAnswer(choices...)}, nil
}

const pointsPerAnswer = 10

// answerPartial builds the update for one answer. A question answered for
// the first time advances the question index and awards points.
func answerPartial(current questionnaire.State, id string, answer questionnaire.Answer) questionnaire.Partial {
	answers := make(map[string]questionnaire.Answer, len(current.Answers)+1)
	for k, v := range current.Answers {
		answers[k] = v
	}
	_, seen := current.Answers[id]
	answers[id] = answer

	p := questionnaire.Partial{Answers: answers}
	if !seen {
		p.CurrentQuestionIndex = questionnaire.Int(current.CurrentQuestionIndex + 1)
		p.Points = questionnaire.Int(current.Points + pointsPerAnswer)
		p.Streak = questionnaire.Int(current.Streak + 1)
	}
	return p
}
