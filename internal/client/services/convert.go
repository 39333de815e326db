package services

import (
	"strconv"
	"time"

	"github.com/dmitrijs2005/voicescreen/internal/client/models"
)

// Values used when a stored result lacks them.
const (
	defaultConfidence       = 0.5
	defaultDuration         = 3.0
	defaultPercentageNormal = 50.0
)

// The API does not return voice features with stored results.
var placeholderFeatures = models.VoiceFeatures{
	Jitter:      0.01,
	Shimmer:     0.02,
	Harmonicity: 0.9,
	Pitch:       120,
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ToRecording converts a stored result into its history view. The score is
// a percentage; confidence is its fraction. For a NORMAL result the
// probability is the complement of the confidence.
func ToRecording(r models.UserResult) models.Recording {
	confidence := defaultConfidence
	percentage := defaultPercentageNormal
	if r.ConfidenceScore != nil && *r.ConfidenceScore != 0 {
		confidence = *r.ConfidenceScore / 100
		percentage = *r.ConfidenceScore
	}

	probability := confidence
	normalCount := 0
	if r.DiseaseStatus == models.StatusNormal {
		probability = 1 - confidence
		normalCount = 1
	}

	duration := defaultDuration
	if r.RecordingDuration != nil && *r.RecordingDuration != 0 {
		duration = *r.RecordingDuration
	}

	return models.Recording{
		ID:        "result_" + strconv.FormatInt(r.ID, 10),
		Timestamp: parseCreatedAt(r.CreatedAt),
		Duration:  duration,
		AudioURL:  r.AudioFilePath,
		Result: models.RecordingResult{
			Probability:      probability,
			Confidence:       confidence,
			Features:         placeholderFeatures,
			Prediction:       r.DiseaseStatus,
			NormalCount:      normalCount,
			TotalWords:       1,
			PercentageNormal: percentage,
		},
	}
}

func parseCreatedAt(s string) time.Time {
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
