package models

import "time"

// Result statuses reported by the screening backend.
const (
	StatusNormal = "NORMAL"
)

type SaveResultRequest struct {
	DiseaseStatus     string   `json:"disease_status" validate:"required"`
	PercentageNormal  float64  `json:"percentage_normal" validate:"gte=0,lte=100"`
	RecordingDuration *float64 `json:"recording_duration,omitempty" validate:"omitempty,gte=0"`
}

type UserResult struct {
	ID                int64    `json:"id"`
	DiseaseStatus     string   `json:"disease_status"`
	ConfidenceScore   *float64 `json:"confidence_score"`
	RecordingDuration *float64 `json:"recording_duration,omitempty"`
	AudioFilePath     string   `json:"audio_file_path,omitempty"`
	CreatedAt         string   `json:"created_at"`
}

type UserHistory struct {
	User    User         `json:"user"`
	Results []UserResult `json:"results"`
}

type VoiceFeatures struct {
	Jitter      float64 `json:"jitter"`
	Shimmer     float64 `json:"shimmer"`
	Harmonicity float64 `json:"harmonicity"`
	Pitch       float64 `json:"pitch"`
}

type RecordingResult struct {
	Probability      float64       `json:"probability"`
	Confidence       float64       `json:"confidence"`
	Features         VoiceFeatures `json:"features"`
	Prediction       string        `json:"prediction"`
	NormalCount      int           `json:"normal_count"`
	TotalWords       int           `json:"total_words"`
	PercentageNormal float64       `json:"percentage_normal"`
}

// Recording is the history view of a stored UserResult.
type Recording struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Duration  float64         `json:"duration"`
	AudioURL  string          `json:"audio_url"`
	Result    RecordingResult `json:"result"`
}

// SaveResultResponse is the server's confirmation of a stored result.
type SaveResultResponse struct {
	Message  string `json:"message"`
	ResultID int64  `json:"result_id"`
}
