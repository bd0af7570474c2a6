package scenario

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/screenright/capture"
)

// Step outcomes reported by Run.
const (
	OutcomeRecorded = "recorded"
	OutcomeDropped  = "dropped"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Key     string `json:"key"`
	URL     string `json:"url,omitempty"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// Report summarises a run.
type Report struct {
	DiagramID    string            `json:"diagram_id"`
	DeploymentID string            `json:"deployment_id,omitempty"`
	Steps        []StepResult      `json:"steps"`
	Blueprint    capture.Blueprint `json:"blueprint"`
	Closed       bool              `json:"closed"`
}

// Run executes sc on page through a new session of rec.
//
// A step whose navigation fails is marked failed and the run continues.
// Once the session collapses the remaining steps are skipped. The session
// is closed at the end if still active. The returned error is the one that
// collapsed the session or failed the close; the report is always filled.
func Run(ctx context.Context, rec *capture.Recorder, page capture.Navigator, sc *Scenario, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := rec.Open(ctx, sc.DiagramID)
	rep := &Report{DiagramID: s.DiagramID(), DeploymentID: s.DeploymentID()}
	if err != nil {
		for _, st := range sc.Steps {
			rep.Steps = append(rep.Steps, StepResult{Key: st.Key, Outcome: OutcomeSkipped})
		}
		return rep, err
	}

	for i, st := range sc.Steps {
		res := StepResult{Key: st.Key}
		if !s.Active() {
			res.Outcome = OutcomeSkipped
			rep.Steps = append(rep.Steps, res)
			continue
		}
		if ctx.Err() != nil {
			res.Outcome = OutcomeSkipped
			res.Error = ctx.Err().Error()
			rep.Steps = append(rep.Steps, res)
			continue
		}

		if st.URL != "" {
			target, err := sc.resolve(st.URL)
			if err == nil {
				res.URL = target
				err = page.Navigate(ctx, target)
			}
			if err != nil {
				logger.Warn("scenario: navigation failed", "step", i+1, "key", st.Key, "error", err)
				res.Outcome = OutcomeFailed
				res.Error = err.Error()
				rep.Steps = append(rep.Steps, res)
				continue
			}
		}

		err := s.Capture(ctx, page, st.Key, st.Title, st.Options())
		switch {
		case err == nil:
			res.Outcome = OutcomeRecorded
		case errors.Is(err, capture.ErrParentNotFound):
			res.Outcome = OutcomeDropped
			res.Error = err.Error()
		default:
			res.Outcome = OutcomeFailed
			res.Error = err.Error()
		}
		logger.Info("scenario: step done", "step", i+1, "key", st.Key, "outcome", res.Outcome)
		rep.Steps = append(rep.Steps, res)
	}

	var runErr error
	if s.Active() {
		runErr = s.Close(context.WithoutCancel(ctx))
		rep.Closed = runErr == nil
	} else {
		runErr = s.Err()
	}
	rep.Blueprint = s.Blueprint()
	return rep, runErr
}
