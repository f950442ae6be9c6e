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

// Package pipeline selects and runs the primary or develop image pipeline
// for a trigger.
package pipeline

import (
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	"golang.org/x/oauth2"

	"github.com/docker/image-pipeline/internal/report"
	"github.com/docker/image-pipeline/pkg/environment"
	"github.com/docker/image-pipeline/pkg/image"
	"github.com/docker/image-pipeline/pkg/secrets"
)

// Kind identifies one of the two pipelines.
type Kind string

const (
	// KindNone means no pipeline runs for the ref.
	KindNone Kind = ""
	// KindPrimary serves main and staging with a strict failure policy.
	KindPrimary Kind = "primary"
	// KindDevelop serves develop with a lenient failure policy.
	KindDevelop Kind = "develop"
)

var branchPipelines = map[string]Kind{
	"main":    KindPrimary,
	"staging": KindPrimary,
	"develop": KindDevelop,
}

// Select returns the pipeline gated on ref. The two pipelines never share a
// branch, so at most one runs per trigger.
func Select(ref string) (Kind, bool) {
	kind, ok := branchPipelines[environment.BranchName(ref)]
	return kind, ok
}

// Outcome records how one step ended.
type Outcome struct {
	Step     string
	Status   report.Status
	Err      error
	Duration time.Duration
}

// Run is the state of a single pipeline execution. Steps fill it in order.
type Run struct {
	ID                string
	Trigger           environment.Trigger
	Environment       environment.Environment
	EnvironmentSource environment.Source
	Kind              Kind
	Commit            string

	Bundle        *secrets.Bundle
	Token         *oauth2.Token
	Tags          []name.Tag
	Digest        string
	BuildMetadata map[string]any

	Outcomes []Outcome
}

// Skipped reports whether no pipeline was selected.
func (r *Run) Skipped() bool {
	return r.Kind == KindNone
}

// Failed reports whether a step failed in a way that counts against the run.
// Tolerated failures do not count.
func (r *Run) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status == report.StatusFailed {
			return true
		}
	}
	return false
}

// FailedSteps lists the names of steps that count as failed.
func (r *Run) FailedSteps() []string {
	var names []string
	for _, o := range r.Outcomes {
		if o.Status == report.StatusFailed {
			names = append(names, o.Step)
		}
	}
	return names
}

// Images renders the computed references.
func (r *Run) Images() []string {
	return image.Strings(r.Tags)
}

// Outcome returns the outcome of step, if it ran.
func (r *Run) Outcome(step string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Step == step {
			return o, true
		}
	}
	return Outcome{}, false
}
