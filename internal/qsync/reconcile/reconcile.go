// Package reconcile picks the starting state of a session when a device copy
// and a server copy may both exist. It runs once per session load.
package reconcile

import "github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"

// Source names where the chosen state came from.
type Source string

const (
	SourceLocal   Source = "local"
	SourceServer  Source = "server"
	SourceDefault Source = "default"
)

// Decision is the outcome of reconciliation. PushToServer is set when the
// local copy won, so the server can be brought up to date once.
type Decision struct {
	State        questionnaire.State
	Source       Source
	PushToServer bool
}

// Decide chooses between local and server; nil means absent. With both
// present the more advanced one wins and ties go to the server.
func Decide(local, server *questionnaire.State) Decision {
	switch {
	case local == nil && server == nil:
		return Decision{State: questionnaire.Default(), Source: SourceDefault}
	case server == nil:
		return Decision{State: local.Clone(), Source: SourceLocal, PushToServer: true}
	case local == nil:
		return Decision{State: server.Clone(), Source: SourceServer}
	case questionnaire.MoreAdvanced(*local, *server):
		return Decision{State: local.Clone(), Source: SourceLocal, PushToServer: true}
	default:
		return Decision{State: server.Clone(), Source: SourceServer}
	}
}
