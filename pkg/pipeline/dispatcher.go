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
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/docker/image-pipeline/internal/logger"
	"github.com/docker/image-pipeline/internal/report"
	"github.com/docker/image-pipeline/pkg/environment"
)

// Dispatcher resolves the environment for a trigger and runs the pipeline the
// trigger's branch selects.
type Dispatcher struct {
	deps        Deps
	runner      *Runner
	out         io.Writer
	stepSummary func(markdown string)
}

type DispatcherOption func(*Dispatcher)

// WithReport writes the terminal summary to w.
func WithReport(w io.Writer) DispatcherOption {
	return func(d *Dispatcher) {
		d.out = w
	}
}

// WithStepSummary hands the markdown summary to fn, typically
// (*githubactions.Action).AddStepSummary.
func WithStepSummary(fn func(markdown string)) DispatcherOption {
	return func(d *Dispatcher) {
		d.stepSummary = fn
	}
}

func NewDispatcher(deps Deps, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{deps: deps, runner: NewRunner(deps.Actions)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes the pipeline for trigger. commit pins the checkout; when empty
// the current HEAD is used. runID defaults to a random UUID.
//
// A trigger whose branch selects no pipeline returns a skipped run and no
// error. The environment is still resolved and published.
func (d *Dispatcher) Run(ctx context.Context, trigger environment.Trigger, commit, runID string) (*Run, error) {
	env, source := environment.ResolveWithReason(trigger)
	kind, _ := Select(trigger.Ref)
	if runID == "" {
		runID = uuid.NewString()
	}

	run := &Run{
		ID:                runID,
		Trigger:           trigger,
		Environment:       env,
		EnvironmentSource: source,
		Kind:              kind,
		Commit:            commit,
	}

	log := logger.WithField("run", runID)
	log.Info().
		Str("event", trigger.Event).
		Str("ref", trigger.Ref).
		Str("environment", string(env)).
		Str("source", string(source)).
		Str("pipeline", string(kind)).
		Msg("resolved environment")

	d.deps.Actions.SetOutput("environment", string(env))
	if run.Skipped() {
		log.Info().Msg("no pipeline is configured for this branch")
		return run, nil
	}

	err := d.runner.Execute(ctx, run, Steps(kind, d.deps))
	d.publish(run, err)
	return run, err
}

func (d *Dispatcher) publish(run *Run, runErr error) {
	images := run.Images()
	if len(images) > 0 {
		d.deps.Actions.SetOutput("image", images[0])
		d.deps.Actions.SetOutput("tags", strings.Join(images, ","))
	}
	if run.Digest != "" {
		d.deps.Actions.SetOutput("digest", run.Digest)
	}

	summary := Summarize(run, runErr)
	if d.out != nil {
		fmt.Fprintln(d.out, report.Terminal(summary))
	}
	if d.stepSummary != nil {
		d.stepSummary(report.Markdown(summary))
	}
}

// Summarize turns a finished run into a report.
func Summarize(run *Run, runErr error) report.Summary {
	result := "succeeded"
	if runErr != nil {
		result = "failed"
	}

	summary := report.Summary{
		Title: fmt.Sprintf("%s pipeline %s", run.Kind, result),
		Fields: [][2]string{
			{"Run", run.ID},
			{"Environment", fmt.Sprintf("%s (from %s)", run.Environment, run.EnvironmentSource)},
			{"Commit", run.Commit},
		},
	}
	if images := run.Images(); len(images) > 0 {
		summary.Fields = append(summary.Fields, [2]string{"Images", strings.Join(images, ", ")})
	}
	if run.Digest != "" {
		summary.Fields = append(summary.Fields, [2]string{"Digest", run.Digest})
	}

	for _, o := range run.Outcomes {
		row := report.Row{Step: o.Step, Status: o.Status}
		if o.Err != nil {
			row.Detail = o.Err.Error()
		}
		summary.Rows = append(summary.Rows, row)
	}
	return summary
}
