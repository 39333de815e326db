package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/voicescreen/internal/client/models"
)

func (a *App) Start(ctx context.Context) error {
	body, err := a.recordings.StartRecording(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Recording started %s\n", body)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	body, err := a.recordings.StopRecording(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Recording stopped %s\n", body)
	return nil
}

// Save stores a result given as: <status> <percentage_normal> [duration].
func (a *App) Save(ctx context.Context, args []string) error {
	req, err := parseSaveArgs(args)
	if err != nil {
		return err
	}

	resp, err := a.recordings.SaveResult(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (id %d)\n", resp.Message, resp.ResultID)
	return nil
}

func parseSaveArgs(args []string) (models.SaveResultRequest, error) {
	var req models.SaveResultRequest
	if len(args) < 2 || len(args) > 3 {
		return req, fmt.Errorf("usage: save <status> <percentage_normal> [duration]")
	}

	req.DiseaseStatus = strings.ToUpper(args[0])

	pct, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return req, fmt.Errorf("invalid percentage %q", args[1])
	}
	req.PercentageNormal = pct

	if len(args) == 3 {
		d, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return req, fmt.Errorf("invalid duration %q", args[2])
		}
		req.RecordingDuration = &d
	}
	return req, nil
}

// History lists the user's recordings, newest last as the server returns
// them.
func (a *App) History(ctx context.Context) error {
	recs := a.recordings.RecordingHistory(ctx)
	if len(recs) == 0 {
		fmt.Fprintln(a.out, "No recordings")
		return nil
	}

	for _, r := range recs {
		ts := "-"
		if !r.Timestamp.IsZero() {
			ts = r.Timestamp.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(a.out, "%-12s %s  %-10s  normal %5.1f%%  confidence %.2f  %.1fs\n",
			r.ID, ts, r.Result.Prediction, r.Result.PercentageNormal, r.Result.Confidence, r.Duration)
	}
	return nil
}
