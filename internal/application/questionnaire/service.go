package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	domain "github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
)

// ErrFallback means the server runs without durable storage. Clients treat
// it as online and keep their local copy authoritative.
var ErrFallback = errors.New("storage not configured")

const DefaultHistoryTimeout = 5 * time.Second

// Service handles reads and writes behind the sync endpoint.
type Service struct {
	repo           domain.Repository
	historyTimeout time.Duration
	logger         zerolog.Logger
	history        sync.WaitGroup
}

// NewService creates a questionnaire service. A nil repo puts the service in
// fallback mode.
func NewService(repo domain.Repository, historyTimeout time.Duration, logger zerolog.Logger) *Service {
	if historyTimeout <= 0 {
		historyTimeout = DefaultHistoryTimeout
	}
	return &Service{
		repo:           repo,
		historyTimeout: historyTimeout,
		logger:         logger.With().Str("service", "questionnaire").Logger(),
	}
}

// Durable reports whether writes reach durable storage.
func (s *Service) Durable() bool {
	return s.repo != nil
}

func (s *Service) Get(ctx context.Context, clientID, questionnaireID string) (*domain.Response, error) {
	key, err := domain.NewKey(clientID, questionnaireID)
	if err != nil {
		return nil, err
	}
	if s.repo == nil {
		return nil, ErrFallback
	}
	resp, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load response %s: %w", key, err)
	}
	return resp, nil
}

// SaveInput is one pushed snapshot.
type SaveInput struct {
	ClientID        string
	QuestionnaireID string
	State           domain.State
}

// Save upserts the snapshot and records an audit entry in the background.
func (s *Service) Save(ctx context.Context, input SaveInput) (*domain.Response, error) {
	key, err := domain.NewKey(input.ClientID, input.QuestionnaireID)
	if err != nil {
		return nil, err
	}
	if err := input.State.Validate(); err != nil {
		return nil, err
	}
	if s.repo == nil {
		return nil, ErrFallback
	}
	resp := domain.NewResponse(key, input.State)
	if err := s.repo.Upsert(ctx, resp); err != nil {
		return nil, fmt.Errorf("save response %s: %w", key, err)
	}
	s.recordHistory(resp)
	return resp, nil
}

// recordHistory is not awaited by Save; the caller never sees its outcome.
func (s *Service) recordHistory(resp *domain.Response) {
	entry := domain.NewHistoryEntry(resp)
	s.history.Add(1)
	go func() {
		defer s.history.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.historyTimeout)
		defer cancel()
		if err := s.repo.InsertHistory(ctx, entry); err != nil {
			s.logger.Warn().Err(err).
				Str("response_id", resp.ID.String()).
				Msg("failed to record response history")
		}
	}()
}

// Drain waits for in-flight history writes.
func (s *Service) Drain() {
	s.history.Wait()
}
