package questionnaire

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"errors"
)

// ErrUnknownResponse is returned when a history entry names a response row
// that does not exist.
var ErrUnknownResponse = errors.New("unknown questionnaire response")

// Repository defines durable server-side persistence for responses.
type Repository interface {
	// Get returns nil, nil when no response exists for key.
	Get(ctx context.Context, key Key) (*Response, error)
	// Upsert inserts or replaces the row for resp's key and fills in
	// resp.ID, resp.CreatedAt and resp.UpdatedAt.
	Upsert(ctx context.Context, resp *Response) error
	InsertHistory(ctx context.Context, entry *HistoryEntry) error
}
