// Package transport performs single round trips against the questionnaire
// sync endpoint and classifies what came back. It never retries.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultBeaconTimeout = 5 * time.Second
	maxBodyBytes         = 1 << 20
)

var (
	ErrTimeout = errors.New("sync request timed out")
	ErrFailure = errors.New("sync request failed")
)

// Outcome classifies one push attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeFallback means the server has no durable backend and accepted
	// the write only nominally. It still counts as online.
	OutcomeFallback
	OutcomeFailure
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFallback:
		return "fallback"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Online reports whether the outcome proves the server is reachable.
func (o Outcome) Online() bool {
	return o == OutcomeSuccess || o == OutcomeFallback
}

// Result is the classification of one push. Err is set for failures and timeouts.
type Result struct {
	Outcome Outcome
	Err     error
}

// Snapshot is what a startup fetch returned. State is nil when the server
// holds nothing for the key.
type Snapshot struct {
	State    *questionnaire.State
	Fallback bool
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	BeaconTimeout time.Duration
	HTTPClient    *http.Client
}

// Client talks to the sync endpoint on behalf of one session key.
type Client struct {
	baseURL       string
	key           questionnaire.Key
	timeout       time.Duration
	beaconTimeout time.Duration
	http          *http.Client
	tracer        trace.Tracer
	logger        zerolog.Logger
	beacons       sync.WaitGroup
}

func NewClient(cfg Config, key questionnaire.Key, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BeaconTimeout <= 0 {
		cfg.BeaconTimeout = DefaultBeaconTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		key:           key,
		timeout:       cfg.Timeout,
		beaconTimeout: cfg.BeaconTimeout,
		http:          cfg.HTTPClient,
		tracer:        otel.Tracer("github.com/resume-services/questionnaire-hub/internal/qsync/transport"),
		logger:        logger.With().Str("component", "transport").Str("session", key.String()).Logger(),
	}
}

func (c *Client) endpoint() string {
	return c.baseURL + "/api/questionnaire/" + url.PathEscape(c.key.ClientID)
}

// pushBody is the camelCase body the endpoint accepts for writes and beacons.
type pushBody struct {
	QuestionnaireID string `json:"questionnaireId"`
	questionnaire.State
}

type pushReply struct {
	Success  bool   `json:"success"`
	Fallback bool   `json:"fallback"`
	Error    string `json:"error"`
}

type fetchReply struct {
	Data     *questionnaire.Response `json:"data"`
	Fallback bool                    `json:"fallback"`
	Error    string                  `json:"error"`
}

func (c *Client) encode(st questionnaire.State) ([]byte, error) {
	return json.Marshal(pushBody{QuestionnaireID: c.key.QuestionnaireID, State: st.Normalize()})
}

// Push sends st once, bounded by the configured timeout.
func (c *Client) Push(ctx context.Context, st questionnaire.State) Result {
	ctx, span := c.tracer.Start(ctx, "questionnaire.sync.push", trace.WithAttributes(
		attribute.String("questionnaire.client_id", c.key.ClientID),
		attribute.String("questionnaire.id", c.key.QuestionnaireID),
	))
	defer span.End()

	res := c.push(ctx, st)
	span.SetAttributes(attribute.String("questionnaire.sync.outcome", res.Outcome.String()))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Outcome.String())
	}
	return res
}

func (c *Client) push(ctx context.Context, st questionnaire.State) Result {
	body, err := c.encode(st)
	if err != nil {
		return Result{Outcome: OutcomeFailure, Err: fmt.Errorf("%w: encode: %v", ErrFailure, err)}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeFailure, Err: fmt.Errorf("%w: %v", ErrFailure, err)}
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return c.classifyError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.classifyError(ctx, attemptCtx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Outcome: OutcomeFailure, Err: fmt.Errorf("%w: HTTP %d", ErrFailure, resp.StatusCode)}
	}

	var reply pushReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return Result{Outcome: OutcomeFailure, Err: fmt.Errorf("%w: decode reply: %v", ErrFailure, err)}
	}
	switch {
	case reply.Fallback:
		return Result{Outcome: OutcomeFallback}
	case reply.Error != "":
		return Result{Outcome: OutcomeFailure, Err: fmt.Errorf("%w: %s", ErrFailure, reply.Error)}
	case reply.Success:
		return Result{Outcome: OutcomeSuccess}
	default:
		return Result{Outcome: OutcomeFailure, Err: fmt.Errorf("%w: unrecognized reply", ErrFailure)}
	}
}

// classifyError separates our own deadline from cancellation by the caller.
func (c *Client) classifyError(parent, attempt context.Context, err error) Result {
	if parent.Err() == nil && errors.Is(attempt.Err(), context.DeadlineExceeded) {
		return Result{Outcome: OutcomeTimeout, Err: fmt.Errorf("%w after %s", ErrTimeout, c.timeout)}
	}
	return Result{Outcome: OutcomeFailure, Err: fmt.Errorf("%w: %v", ErrFailure, err)}
}

// Fetch reads the server copy once. A network or HTTP error is returned as-is;
// the caller treats it as "server unreachable".
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	ctx, span := c.tracer.Start(ctx, "questionnaire.sync.fetch", trace.WithAttributes(
		attribute.String("questionnaire.client_id", c.key.ClientID),
		attribute.String("questionnaire.id", c.key.QuestionnaireID),
	))
	defer span.End()

	snap, err := c.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
	}
	return snap, err
}

func (c *Client) fetch(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.endpoint() + "?" + url.Values{"questionnaireId": {c.key.QuestionnaireID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Snapshot{}, err
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Snapshot{}, fmt.Errorf("%w: %v", ErrFailure, err)
	}
	defer resp.Body.Close()

	var reply fetchReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&reply); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decode reply: %v", ErrFailure, err)
	}
	if reply.Fallback {
		return Snapshot{Fallback: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || reply.Error != "" {
		return Snapshot{}, fmt.Errorf("%w: HTTP %d %s", ErrFailure, resp.StatusCode, reply.Error)
	}
	if reply.Data == nil {
		return Snapshot{}, nil
	}
	st := reply.Data.State()
	return Snapshot{State: &st}, nil
}

// Beacon sends st in the background and never reports back. It is meant for
// teardown, where nothing can wait for the answer.
func (c *Client) Beacon(st questionnaire.State) {
	body, err := c.encode(st)
	if err != nil {
		c.logger.Warn().Err(err).Msg("beacon encode failed")
		return
	}
	c.beacons.Add(1)
	go func() {
		defer c.beacons.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.beaconTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
		if err != nil {
			return
		}
		// browsers send beacons as text/plain; the endpoint accepts either
		req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Debug().Err(err).Msg("beacon not delivered")
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
}

// WaitBeacons blocks until in-flight beacons finish or ctx is done. A
// process that exits right after unload calls it so the last send is not cut
// off; a browser page has no equivalent.
func (c *Client) WaitBeacons(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.beacons.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
