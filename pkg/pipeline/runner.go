/*
Copyright © 2025 Docker, Inc.

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docker/image-pipeline/internal/logger"
	"github.com/docker/image-pipeline/internal/report"
)

// Policy decides what a step failure does to the pipeline.
type Policy int

const (
	// PolicyStrict stops the pipeline and fails the run.
	PolicyStrict Policy = iota
	// PolicyContinue moves on to the next step but the run counts as failed.
	PolicyContinue
	// PolicyIgnore moves on and the failure never counts against the run.
	PolicyIgnore
)

// ErrSkipped is returned by steps that have nothing to do.
var ErrSkipped = errors.New("step skipped")

// Step is one unit of a pipeline.
type Step struct {
	Name   string
	Policy Policy
	Run    func(ctx context.Context, run *Run) error
}

// Actions is the part of the CI host integration the runner needs.
// *githubactions.Action implements it.
type Actions interface {
	AddMask(p string)
	Errorf(msg string, args ...any)
	Warningf(msg string, args ...any)
	Group(title string)
	EndGroup()
	SetOutput(k, v string)
}

// Runner executes steps one after the other.
type Runner struct {
	actions Actions
	now     func() time.Time
}

func NewRunner(actions Actions) *Runner {
	return &Runner{actions: actions, now: time.Now}
}

// Execute runs steps in order, recording an outcome for each. It returns the
// error of the first strict step that fails; the remaining steps are marked
// skipped.
func (r *Runner) Execute(ctx context.Context, run *Run, steps []Step) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			skipRemaining(run, steps[i:])
			return err
		}

		log := logger.WithField("step", step.Name)
		log.Info().Msg("step started")

		r.actions.Group(step.Name)
		start := r.now()
		err := step.Run(ctx, run)
		elapsed := r.now().Sub(start)
		r.actions.EndGroup()

		outcome := Outcome{Step: step.Name, Duration: elapsed}
		switch {
		case err == nil:
			outcome.Status = report.StatusSucceeded
			log.Info().Dur("duration", elapsed).Msg("step succeeded")
		case errors.Is(err, ErrSkipped):
			outcome.Status = report.StatusSkipped
			log.Info().Msg("step skipped")
		case step.Policy == PolicyIgnore:
			outcome.Status = report.StatusTolerated
			outcome.Err = err
			log.Warn().Err(err).Msg("step failed, ignored")
			r.actions.Warningf("%s failed (ignored): %v", step.Name, err)
		case step.Policy == PolicyContinue:
			outcome.Status = report.StatusFailed
			outcome.Err = err
			log.Error().Err(err).Msg("step failed, continuing")
			r.actions.Warningf("%s failed: %v", step.Name, err)
		default:
			outcome.Status = report.StatusFailed
			outcome.Err = err
			run.Outcomes = append(run.Outcomes, outcome)
			log.Error().Err(err).Msg("step failed")
			r.actions.Errorf("%s failed: %v", step.Name, err)
			skipRemaining(run, steps[i+1:])
			return fmt.Errorf("%s: %w", step.Name, err)
		}
		run.Outcomes = append(run.Outcomes, outcome)
	}
	return nil
}

func skipRemaining(run *Run, steps []Step) {
	for _, step := range steps {
		run.Outcomes = append(run.Outcomes, Outcome{Step: step.Name, Status: report.StatusSkipped})
	}
}
