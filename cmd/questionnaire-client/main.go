package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/resume-services/questionnaire-hub/internal/config"
	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
	"github.com/resume-services/questionnaire-hub/internal/infrastructure/devicestore"
	"github.com/resume-services/questionnaire-hub/internal/infrastructure/telemetry"
	"github.com/resume-services/questionnaire-hub/internal/qsync/localstore"
	"github.com/resume-services/questionnaire-hub/internal/qsync/retry"
	"github.com/resume-services/questionnaire-hub/internal/qsync/session"
	"github.com/resume-services/questionnaire-hub/internal/qsync/transport"
)

const clientIDKey = "questionnaire_client_id"

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	shutdownTracing, err := telemetry.Setup(context.Background(), "questionnaire-client", cfg.OTELEndpoint)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	medium, err := devicestore.OpenBolt(cfg.DeviceStorePath)
	if err != nil {
		log.Fatalf("device store error: %v", err)
	}
	defer medium.Close()

	clientID, err := resolveClientID(cfg.ClientID, medium)
	if err != nil {
		log.Fatalf("client id error: %v", err)
	}
	key, err := questionnaire.NewKey(clientID, cfg.QuestionnaireID)
	if err != nil {
		log.Fatalf("session key error: %v", err)
	}

	var opts []localstore.Option
	deviceKey, err := cfg.DeviceKey()
	if err != nil {
		log.Fatalf("device key error: %v", err)
	}
	if deviceKey != nil {
		codec, err := localstore.NewSealedCodec(deviceKey)
		if err != nil {
			log.Fatalf("device key error: %v", err)
		}
		opts = append(opts, localstore.WithCodec(codec))
	}

	remote := transport.NewClient(transport.Config{BaseURL: cfg.SyncBaseURL, Timeout: cfg.SyncTimeout}, key, logger)
	mgr := session.New(session.Options{
		Key:            key,
		Local:          localstore.New(medium, key, logger, opts...),
		Remote:         remote,
		Clock:          clockwork.NewRealClock(),
		LocalSaveDelay: cfg.LocalSaveDelay,
		SyncDelay:      cfg.SyncDelay,
		Retry:          retry.DefaultConfig(),
		Logger:         logger,
	})
	unsubscribe := mgr.Subscribe(statusPrinter())
	defer unsubscribe()

	fmt.Printf("session %s\n", key)
	startSession(mgr, printState)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

loop:
	for {
		select {
		case <-quit:
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			handleLine(mgr, line)
		}
	}

	// leaving is the page-unload moment
	mgr.Unload()
	ctx, cancel := context.WithTimeout(context.Background(), transport.DefaultBeaconTimeout)
	defer cancel()
	if err := remote.WaitBeacons(ctx); err != nil {
		logger.Warn().Err(err).Msg("final sync may not have been delivered")
	}
	mgr.Close()
}

// startSession shows the device copy right away; the reconciled one follows
// once the server read resolves.
func startSession(mgr *session.Manager, show func(questionnaire.State, session.Status)) {
	mgr.Start()
	show(mgr.State(), mgr.Status())
	go func() {
		<-mgr.Ready()
		show(mgr.State(), mgr.Status())
	}()
}

func handleLine(mgr *session.Manager, line string) {
	cmd, err := parseLine(line)
	if err != nil {
		fmt.Println(err)
		return
	}
	switch cmd.kind {
	case cmdAnswer:
		mgr.UpdateState(answerPartial(mgr.State(), cmd.questionID, cmd.answer))
	case cmdDone:
		mgr.UpdateState(questionnaire.Partial{Completed: questionnaire.Bool(true)})
	case cmdSync:
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		report, err := mgr.ForceSync(ctx)
		cancel()
		if err != nil {
			fmt.Println("sync:", err)
			return
		}
		fmt.Printf("sync: %s after %d attempt(s)\n", report.Outcome, report.Attempts)
	case cmdOnline:
		mgr.WentOnline()
	case cmdOffline:
		mgr.WentOffline()
	case cmdStatus:
		printState(mgr.State(), mgr.Status())
	}
}

// resolveClientID prefers the configured id, then the one remembered on this
// device, and otherwise mints and remembers a new one.
func resolveClientID(configured string, medium localstore.Medium) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if id, ok, err := medium.Get(clientIDKey); err != nil {
		return "", err
	} else if ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	if err := medium.Set(clientIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}

func statusPrinter() session.Observer {
	var (
		mu   sync.Mutex
		last session.Status
	)
	return func(_ questionnaire.State, status session.Status) {
		mu.Lock()
		defer mu.Unlock()
		if status.IsOnline == last.IsOnline && status.Error == last.Error && status.Phase == last.Phase {
			return
		}
		last = status
		line := fmt.Sprintf("[%s] online=%t", status.Phase, status.IsOnline)
		if status.Error != "" {
			line += " " + status.Error
		}
		fmt.Println(line)
	}
}

func printState(st questionnaire.State, status session.Status) {
	fmt.Printf("answers=%d question=%d points=%d completed=%t online=%t", st.AnswerCount(), st.CurrentQuestionIndex, st.Points, st.Completed, status.IsOnline)
	if status.IsLoading {
		fmt.Print(" loading")
	}
	if !status.LastSyncedAt.IsZero() {
		fmt.Printf(" synced=%s", status.LastSyncedAt.Format(time.RFC3339))
	}
	fmt.Println()
}
