package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
	"github.com/resume-services/questionnaire-hub/internal/infrastructure/devicestore"
)

func TestResolveClientIDPrefersConfigured(t *testing.T) {
	medium := devicestore.NewMemory(0)
	id, err := resolveClientID("device-a", medium)
	require.NoError(t, err)
	assert.Equal(t, "device-a", id)

	_, ok, err := medium.Get(clientIDKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveClientIDMintsOnceAndRemembers(t *testing.T) {
	medium := devicestore.NewMemory(0)
	first, err := resolveClientID("", medium)
	require.NoError(t, err)

	_, err = questionnaire.NewKey(first, questionnaire.DefaultQuestionnaireID)
	require.NoError(t, err, "minted id must be a valid client id")

	second, err := resolveClientID("", medium)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
