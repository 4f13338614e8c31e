// Package localstore persists one questionnaire session per device and
// degrades every read failure into "no data".
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
)

var (
	ErrNoData        = errors.New("no local state")
	ErrDecode        = errors.New("local state could not be decoded")
	ErrParse         = errors.New("local state is not well-formed JSON")
	ErrValidation    = errors.New("local state has the wrong shape")
	ErrQuotaExceeded = errors.New("local storage quota exceeded")
)

// Medium is the device-local key-value storage the store writes through.
type Medium interface {
	// Get reports ok=false when key has never been written.
	Get(key string) (value string, ok bool, err error)
	// Set returns an error wrapping ErrQuotaExceeded when the medium is full.
	Set(key, value string) error
}

// Store reads and writes the state of one session key.
type Store struct {
	medium Medium
	key    string
	codec  Codec
	logger zerolog.Logger
}

type Option func(*Store)

func WithCodec(c Codec) Option {
	return func(s *Store) {
		if c != nil {
			s.codec = c
		}
	}
}

func New(medium Medium, key questionnaire.Key, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		medium: medium,
		key:    key.StorageKey(),
		codec:  ObfuscationCodec{},
		logger: logger.With().Str("component", "localstore").Str("key", key.StorageKey()).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes st. Failures are logged and dropped; losing the local cache
// must never reach the caller.
func (s *Store) Save(st questionnaire.State) {
	data, err := json.Marshal(st.Normalize())
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to serialize state")
		return
	}
	encoded, err := s.codec.Encode(data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode state")
		return
	}
	if err := s.medium.Set(s.key, encoded); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			s.logger.Warn().Err(err).Str("kind", "quota_exceeded").Msg("failed to save state locally")
			return
		}
		s.logger.Warn().Err(err).Msg("failed to save state locally")
	}
}

// Load runs decode, parse and schema validation in turn. Any failing stage
// yields an error wrapping ErrNoData plus the stage's own sentinel.
func (s *Store) Load() (questionnaire.State, error) {
	st, err := s.load()
	if err != nil && !errors.Is(err, ErrNoData) {
		s.logger.Warn().Err(err).Msg("discarding local state")
		err = fmt.Errorf("%w: %w", ErrNoData, err)
	}
	return st, err
}

func (s *Store) load() (questionnaire.State, error) {
	stored, ok, err := s.medium.Get(s.key)
	if err != nil {
		return questionnaire.State{}, fmt.Errorf("%w: read medium: %v", ErrDecode, err)
	}
	if !ok || stored == "" {
		return questionnaire.State{}, ErrNoData
	}

	plain, err := s.codec.Decode(stored)
	if err != nil {
		return questionnaire.State{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var doc any
	if err := json.Unmarshal(plain, &doc); err != nil {
		return questionnaire.State{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := questionnaire.ValidateDocument(doc); err != nil {
		return questionnaire.State{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var st questionnaire.State
	if err := json.Unmarshal(plain, &st); err != nil {
		return questionnaire.State{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return st.Normalize(), nil
}
