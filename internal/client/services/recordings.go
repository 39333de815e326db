package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/voicescreen/internal/client/apierr"
	"github.com/dmitrijs2005/voicescreen/internal/client/dedup"
	"github.com/dmitrijs2005/voicescreen/internal/client/models"
	"github.com/dmitrijs2005/voicescreen/internal/logging"
)

// TokenSource yields a currently valid access credential.
type TokenSource interface {
	ValidAccessToken(ctx context.Context) (string, error)
}

// Executor runs a request through the dedup cache.
type Executor interface {
	Execute(ctx context.Context, d dedup.Descriptor, forceNew bool) (*dedup.Response, error)
}

// RecordingService drives a screening session and reads its results.
type RecordingService struct {
	tokens  TokenSource
	exec    Executor
	baseURL string
	log     logging.Logger
}

func NewRecordingService(tokens TokenSource, exec Executor, baseURL string, log logging.Logger) *RecordingService {
	if log == nil {
		log = logging.Nop()
	}
	return &RecordingService{
		tokens:  tokens,
		exec:    exec,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With("component", "recordings"),
	}
}

// StartRecording asks the server to begin capturing. The reply is returned
// as sent.
func (s *RecordingService) StartRecording(ctx context.Context) (json.RawMessage, error) {
	s.log.Debug(ctx, "starting recording")
	resp, err := s.call(ctx, http.MethodPost, "/start_recording", nil)
	if err != nil {
		s.log.Error(ctx, "start recording failed", "error", err)
		return nil, err
	}
	return resp.Body, nil
}

func (s *RecordingService) StopRecording(ctx context.Context) (json.RawMessage, error) {
	s.log.Debug(ctx, "stopping recording")
	resp, err := s.call(ctx, http.MethodPost, "/stop_recording", nil)
	if err != nil {
		s.log.Error(ctx, "stop recording failed", "error", err)
		return nil, err
	}
	return resp.Body, nil
}

// SaveResult stores an analysis result. Two identical saves issued while
// the first is in flight produce one write and the same confirmation.
func (s *RecordingService) SaveResult(ctx context.Context, req models.SaveResultRequest) (*models.SaveResultResponse, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	resp, err := s.call(ctx, http.MethodPost, "/results", req)
	if err != nil {
		s.log.Error(ctx, "save result failed", "error", err)
		return nil, err
	}

	var out models.SaveResultResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserResults returns the history of the given user.
func (s *RecordingService) UserResults(ctx context.Context, userID int64) (*models.UserHistory, error) {
	return s.history(ctx, "/user-result/"+strconv.FormatInt(userID, 10))
}

// MyHistory returns the history of the logged in user.
func (s *RecordingService) MyHistory(ctx context.Context) (*models.UserHistory, error) {
	return s.history(ctx, "/my-results")
}

func (s *RecordingService) history(ctx context.Context, path string) (*models.UserHistory, error) {
	resp, err := s.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var out models.UserHistory
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordingHistory returns the logged in user's results as recordings.
// Failures are logged and yield an empty list.
func (s *RecordingService) RecordingHistory(ctx context.Context) []models.Recording {
	h, err := s.MyHistory(ctx)
	if err != nil {
		s.log.Warn(ctx, "failed to get recording history", "error", err)
		return []models.Recording{}
	}

	out := make([]models.Recording, 0, len(h.Results))
	for _, r := range h.Results {
		out = append(out, ToRecording(r))
	}
	return out
}

// call sends one authenticated JSON request. No request is made without a
// token.
func (s *RecordingService) call(ctx context.Context, method, path string, body any) (*dedup.Response, error) {
	token, err := s.tokens.ValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	d := dedup.Descriptor{
		Method: method,
		URL:    s.baseURL + path,
		Header: http.Header{
			"Content-Type":  []string{"application/json"},
			"Authorization": []string{"Bearer " + token},
		},
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindValidation, "encode request", err)
		}
		d.Body = b
	}

	return s.exec.Execute(ctx, d, false)
}
