package cli

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/voicescreen/internal/client/apierr"
	"github.com/dmitrijs2005/voicescreen/internal/client/models"
)

func TestStartStop(t *testing.T) {
	a, out := newTestApp(&fakeAuth{})
	a.recordings = &fakeRecordings{startBody: json.RawMessage(`{"message":"started"}`)}

	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Stop(context.Background()))
	assert.Contains(t, out.String(), `Recording started {"message":"started"}`)
	assert.Contains(t, out.String(), `Recording stopped {"message":"stopped"}`)
}

func TestStart_AuthRequired(t *testing.T) {
	a, _ := newTestApp(&fakeAuth{})
	a.recordings = &fakeRecordings{err: apierr.New(apierr.KindAuthRequired, apierr.ErrAuthRequired.Message, 401)}

	require.ErrorIs(t, a.Start(context.Background()), apierr.ErrAuthRequired)
}

func TestSave(t *testing.T) {
	rec := &fakeRecordings{}
	a, out := newTestApp(&fakeAuth{})
	a.recordings = rec

	require.NoError(t, a.Save(context.Background(), []string{"normal", "85.5", "4"}))
	require.NotNil(t, rec.saved)
	assert.Equal(t, "NORMAL", rec.saved.DiseaseStatus)
	assert.Equal(t, 85.5, rec.saved.PercentageNormal)
	require.NotNil(t, rec.saved.RecordingDuration)
	assert.Equal(t, 4.0, *rec.saved.RecordingDuration)
	assert.Contains(t, out.String(), "Result saved (id 9)")
}

func TestParseSaveArgs_Errors(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"NORMAL"},
		{"NORMAL", "lots"},
		{"NORMAL", "50", "long"},
		{"NORMAL", "50", "1", "extra"},
	} {
		_, err := parseSaveArgs(args)
		assert.Error(t, err, "args %v", args)
	}
}

func TestHistory(t *testing.T) {
	rec := &fakeRecordings{}
	a, out := newTestApp(&fakeAuth{})
	a.recordings = rec

	require.NoError(t, a.History(context.Background()))
	assert.Contains(t, out.String(), "No recordings")

	rec.history = []models.Recording{{
		ID:        "result_1",
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Duration:  4.5,
		Result:    models.RecordingResult{Prediction: "NORMAL", PercentageNormal: 80, Confidence: 0.8},
	}}
	out.Reset()
	require.NoError(t, a.History(context.Background()))
	assert.Contains(t, out.String(), "result_1")
	assert.Contains(t, out.String(), "2024-05-01 10:00")
	assert.Contains(t, out.String(), "80.0%")
}
