package migrations

import "embed"

// FS contains embedded SQLite migrations for questionnaire storage.
//
//go:embed *.sql
var FS embed.FS
