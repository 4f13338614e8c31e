package main

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
	"github.com/resume-services/questionnaire-hub/internal/infrastructure/devicestore"
	"github.com/resume-services/questionnaire-hub/internal/qsync/localstore"
	"github.com/resume-services/questionnaire-hub/internal/qsync/session"
	"github.com/resume-services/questionnaire-hub/internal/qsync/transport"
)

func TestStartSessionShowsDeviceCopyBeforeServerAnswers(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":null}`))
	}))
	defer srv.Close()

	key, err := questionnaire.NewKey("client-1", "")
	require.NoError(t, err)
	medium := devicestore.NewMemory(0)
	local := localstore.New(medium, key, zerolog.Nop())
	local.Save(questionnaire.Default().Merge(questionnaire.Partial{
		Answers: map[string]questionnaire.Answer{"q1": questionnaire.TextAnswer("a")},
	}))

	mgr := session.New(session.Options{
		Key:    key,
		Local:  local,
		Remote: transport.NewClient(transport.Config{BaseURL: srv.URL}, key, zerolog.Nop()),
		Logger: zerolog.Nop(),
	})

	var (
		mu    sync.Mutex
		shown []session.Status
		first questionnaire.State
	)
	startSession(mgr, func(st questionnaire.State, status session.Status) {
		mu.Lock()
		defer mu.Unlock()
		if len(shown) == 0 {
			first = st
		}
		shown = append(shown, status)
	})

	mu.Lock()
	require.Len(t, shown, 1, "nothing may wait for the server before the first render")
	assert.True(t, shown[0].IsLoading)
	assert.Equal(t, 1, first.AnswerCount())
	mu.Unlock()

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(shown) == 2
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.False(t, shown[1].IsLoading)
	mu.Unlock()
	mgr.Close()
}
