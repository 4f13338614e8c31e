// Package retry turns single sync attempts into a bounded, backed-off
// operation and decides when repeated failure means "offline".
package retry

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
	"github.com/resume-services/questionnaire-hub/internal/qsync/transport"
)

// Pusher performs one classified attempt.
type Pusher interface {
	Push(ctx context.Context, st questionnaire.State) transport.Result
}

// Config bounds one logical sync.
type Config struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	OfflineThreshold int
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialBackoff:   time.Second,
		MaxBackoff:       4 * time.Second,
		OfflineThreshold: 2,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff * 4
	}
	if c.OfflineThreshold <= 0 {
		c.OfflineThreshold = def.OfflineThreshold
	}
	return c
}

// Status is what one logical sync means for connectivity.
type Status int

const (
	// StatusOnline: an attempt succeeded (or the server is in fallback mode).
	StatusOnline Status = iota
	// StatusTransient: every attempt failed, but not often enough in a row to call it offline.
	StatusTransient
	// StatusOffline: consecutive exhausted syncs reached the threshold.
	StatusOffline
	// StatusCanceled: the caller's context ended before the sync settled.
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusTransient:
		return "transient"
	case StatusOffline:
		return "offline"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Report describes how one logical sync settled.
type Report struct {
	Status              Status
	Outcome             transport.Outcome
	Attempts            int
	SyncedAt            time.Time
	ConsecutiveFailures int
	Err                 error
}

// Controller owns the consecutive-failure counter for one session.
type Controller struct {
	pusher    Pusher
	clock     clockwork.Clock
	cfg       Config
	logger    zerolog.Logger
	onAttempt func(attempt int)

	mu                  sync.Mutex
	consecutiveFailures int
	lastSyncedAt        time.Time
}

type Option func(*Controller)

// WithAttemptHook is called before every attempt with its 1-based number.
func WithAttemptHook(fn func(attempt int)) Option {
	return func(c *Controller) { c.onAttempt = fn }
}

func NewController(pusher Pusher, clock clockwork.Clock, cfg Config, logger zerolog.Logger, opts ...Option) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Controller{
		pusher: pusher,
		clock:  clock,
		cfg:    cfg.normalized(),
		logger: logger.With().Str("component", "retry").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.cfg.MaxBackoff,
	}
	b.Reset()
	return b
}

// Sync pushes st, retrying with backoff. Every attempt sends the snapshot
// taken when Sync was called, never a newer one. Cancelling ctx ends the
// sequence between attempts; an attempt already sent is bounded only by the
// transport's own timeout.
func (c *Controller) Sync(ctx context.Context, st questionnaire.State) Report {
	snapshot := st.Clone()
	b := c.newBackOff()
	attemptCtx := context.WithoutCancel(ctx)

	var last transport.Result
	attempts := 0
	for {
		if attempts == 0 && ctx.Err() != nil {
			return Report{Status: StatusCanceled, Outcome: transport.OutcomeFailure, Err: ctx.Err()}
		}
		attempts++
		if c.onAttempt != nil {
			c.onAttempt(attempts)
		}
		last = c.pusher.Push(attemptCtx, snapshot)
		if last.Outcome.Online() {
			return c.succeeded(last, attempts)
		}

		c.logger.Warn().Err(last.Err).
			Int("attempt", attempts).
			Str("outcome", last.Outcome.String()).
			Msg("sync attempt failed")

		if ctx.Err() != nil {
			return Report{Status: StatusCanceled, Outcome: last.Outcome, Attempts: attempts, Err: ctx.Err()}
		}
		if attempts >= c.cfg.MaxAttempts {
			break
		}

		delay := b.NextBackOff()
		c.logger.Info().Dur("delay", delay).Int("next_attempt", attempts+1).Msg("retrying sync")
		select {
		case <-c.clock.After(delay):
		case <-ctx.Done():
			return Report{Status: StatusCanceled, Outcome: last.Outcome, Attempts: attempts, Err: ctx.Err()}
		}
	}

	c.mu.Lock()
	c.consecutiveFailures++
	failures := c.consecutiveFailures
	c.mu.Unlock()

	status := StatusTransient
	if failures >= c.cfg.OfflineThreshold {
		status = StatusOffline
	} else {
		c.logger.Warn().Int("consecutive_failures", failures).Msg("transient sync failure, keeping online status")
	}
	return Report{
		Status:              status,
		Outcome:             last.Outcome,
		Attempts:            attempts,
		ConsecutiveFailures: failures,
		Err:                 last.Err,
	}
}

func (c *Controller) succeeded(res transport.Result, attempts int) Report {
	now := c.clock.Now()
	c.mu.Lock()
	c.consecutiveFailures = 0
	c.lastSyncedAt = now
	c.mu.Unlock()
	if res.Outcome == transport.OutcomeFallback {
		c.logger.Info().Msg("server sync disabled, relying on local storage")
	}
	return Report{Status: StatusOnline, Outcome: res.Outcome, Attempts: attempts, SyncedAt: now}
}

func (c *Controller) ConsecutiveFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveFailures
}

// LastSyncedAt is zero until a sync has succeeded.
func (c *Controller) LastSyncedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSyncedAt
}
