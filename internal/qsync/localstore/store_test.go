package localstore

import (
	"encoding/base64"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
)

type mapMedium struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
	sets   int
}

func newMapMedium() *mapMedium {
	return &mapMedium{values: map[string]string{}}
}

func (m *mapMedium) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mapMedium) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func testKey(t *testing.T) questionnaire.Key {
	t.Helper()
	key, err := questionnaire.NewKey("test-client", "discovery")
	require.NoError(t, err)
	return key
}

func sampleState() questionnaire.State {
	return questionnaire.Default().Merge(questionnaire.Partial{
		Answers: map[string]questionnaire.Answer{
			"q1": questionnaire.TextAnswer("ten years in logistics & ops"),
			"q2": questionnaire.MultiAnswer("leadership", "budgeting"),
		},
		CurrentQuestionIndex: questionnaire.Int(2),
		CurrentModuleIndex:   questionnaire.Int(1),
		Points:               questionnaire.Int(40),
		Streak:               questionnaire.Int(3),
		Combo:                questionnaire.Int(2),
		ShownMilestones:      []int{10, 25},
	})
}

func TestStoreRoundTrip(t *testing.T) {
	medium := newMapMedium()
	store := New(medium, testKey(t), zerolog.Nop())

	store.Save(sampleState())
	require.Contains(t, medium.values, "questionnaire_discovery_test-client")
	assert.NotContains(t, medium.values["questionnaire_discovery_test-client"], "logistics")

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)
}

func TestStoreSaveNeverWritesNegativeCounters(t *testing.T) {
	store := New(newMapMedium(), testKey(t), zerolog.Nop())

	st := sampleState()
	st.Combo = -1
	store.Save(st)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, got.Combo)
	assert.Len(t, got.Answers, 2)
}

func TestStoreSealedRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	codec, err := NewSealedCodec(key)
	require.NoError(t, err)

	medium := newMapMedium()
	store := New(medium, testKey(t), zerolog.Nop(), WithCodec(codec))
	store.Save(sampleState())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)

	// a store with the default codec cannot read a sealed blob
	_, err = New(medium, testKey(t), zerolog.Nop()).Load()
	assert.ErrorIs(t, err, ErrNoData)

	_, err = NewSealedCodec([]byte("short"))
	assert.Error(t, err)
}

func TestStoreLoadMissing(t *testing.T) {
	store := New(newMapMedium(), testKey(t), zerolog.Nop())
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoData)
}

func TestStoreLoadPipelineFailures(t *testing.T) {
	encode := func(s string) string {
		out, err := ObfuscationCodec{}.Encode([]byte(s))
		require.NoError(t, err)
		return out
	}
	tests := []struct {
		name   string
		stored string
		stage  error
	}{
		{"not base64", "%%%not-base64%%%", ErrDecode},
		{"bad escape", base64.StdEncoding.EncodeToString([]byte("%zz")), ErrDecode},
		{"not json", encode("{answers:"), ErrParse},
		{"wrong shape", encode(`{"answers":{},"points":"lots"}`), ErrValidation},
		{"json array", encode(`[1,2,3]`), ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			medium := newMapMedium()
			key := testKey(t)
			medium.values[key.StorageKey()] = tt.stored

			_, err := New(medium, key, zerolog.Nop()).Load()
			assert.ErrorIs(t, err, ErrNoData)
			assert.ErrorIs(t, err, tt.stage)
		})
	}
}

func TestStoreLoadCorruptedBytesNeverPanics(t *testing.T) {
	medium := newMapMedium()
	key := testKey(t)
	store := New(medium, key, zerolog.Nop())
	store.Save(sampleState())
	original := medium.values[key.StorageKey()]

	for i := 0; i < len(original); i++ {
		corrupted := []byte(original)
		corrupted[i] ^= 0x5a
		medium.values[key.StorageKey()] = string(corrupted)

		assert.NotPanics(t, func() {
			got, err := store.Load()
			if err == nil {
				// a flip that still decodes to a valid document is acceptable
				assert.NotNil(t, got.Answers)
			} else {
				assert.ErrorIs(t, err, ErrNoData)
			}
		}, fmt.Sprintf("byte %d", i))
	}

	medium.values[key.StorageKey()] = original[:len(original)/2]
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoData)
}

func TestStoreSaveSwallowsQuota(t *testing.T) {
	medium := newMapMedium()
	medium.setErr = fmt.Errorf("write: %w", ErrQuotaExceeded)
	store := New(medium, testKey(t), zerolog.Nop())

	assert.NotPanics(t, func() { store.Save(sampleState()) })
	assert.Equal(t, 1, medium.sets)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoData)
}
