package devicestore

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
	"github.com/resume-services/questionnaire-hub/internal/qsync/localstore"
)

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory(0)

	_, ok, err := m.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set("k", "abc"))
	v, ok, err := m.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
	assert.Equal(t, 3, m.Used())
}

func TestMemoryQuota(t *testing.T) {
	m := NewMemory(10)
	require.NoError(t, m.Set("k", "12345678"))

	err := m.Set("other", "abc")
	require.ErrorIs(t, err, localstore.ErrQuotaExceeded)

	// overwriting reuses the space of the old value
	require.NoError(t, m.Set("k", "1234567890"))
	assert.Equal(t, 10, m.Used())
}

func TestMemoryQuotaKeepsOldValue(t *testing.T) {
	m := NewMemory(4)
	require.NoError(t, m.Set("k", "abcd"))
	require.Error(t, m.Set("k", "abcde"))

	v, _, _ := m.Get("k")
	assert.Equal(t, "abcd", v)
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.db")

	b, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, b.Set("k", "value"))
	require.NoError(t, b.Close())

	b, err = OpenBolt(path)
	require.NoError(t, err)
	defer b.Close()

	v, ok, err := b.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	_, ok, err = b.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoltBacksLocalStore(t *testing.T) {
	b, err := OpenBolt(filepath.Join(t.TempDir(), "device.db"))
	require.NoError(t, err)
	defer b.Close()

	key, err := questionnaire.NewKey("client-1", "")
	require.NoError(t, err)
	store := localstore.New(b, key, zerolog.Nop())

	st := questionnaire.Default()
	st.Points = 30
	st.Answers["q1"] = questionnaire.TextAnswer("yes")
	store.Save(st)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 30, got.Points)
	assert.Equal(t, "yes", got.Answers["q1"].Value())
}

func TestMemoryQuotaDoesNotFailLocalStore(t *testing.T) {
	m := NewMemory(8)
	key, err := questionnaire.NewKey("client-1", "")
	require.NoError(t, err)
	store := localstore.New(m, key, zerolog.Nop())

	st := questionnaire.Default()
	st.Answers["q1"] = questionnaire.TextAnswer(strings.Repeat("x", 64))
	store.Save(st)

	_, err = store.Load()
	assert.ErrorIs(t, err, localstore.ErrNoData)
}
