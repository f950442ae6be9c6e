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
	"strings"
)

// ErrDevelopFailed is returned by the develop diagnostic when an earlier step
// failed.
var ErrDevelopFailed = errors.New("develop pipeline failed")

// DevelopGuidance is emitted, one annotation per line, when the develop
// pipeline fails.
var DevelopGuidance = []string{
	"Secret store: check that the develop service account token is valid and can read the ci-develop vault.",
	"Identity: check that the develop workload identity provider trusts this repository and the service account binding allows impersonation.",
	"Registry: check that the develop repository exists and the service account may push to it.",
	"Build: review the buildx output above; the Dockerfile must build from the repository root for the configured platform.",
}

func core(deps Deps) []Step {
	return []Step{
		checkoutStep(deps),
		secretsStep(deps),
		authenticateStep(deps),
		registryLoginStep(deps),
		buildPushStep(deps),
		verifyStep(deps),
	}
}

func trailing(deps Deps) []Step {
	return []Step{scanStep(deps), archiveStep(deps), notifyStep(deps)}
}

// Primary is the strict pipeline for main and staging.
func Primary(deps Deps) []Step {
	return append(core(deps), trailing(deps)...)
}

// Develop runs the same steps as Primary but keeps going on failure, then
// ends with the diagnostic step.
func Develop(deps Deps) []Step {
	steps := core(deps)
	for i := range steps {
		steps[i].Policy = PolicyContinue
	}
	steps = append(steps, trailing(deps)...)
	return append(steps, diagnoseStep(deps))
}

// Steps returns the step list for kind.
func Steps(kind Kind, deps Deps) []Step {
	switch kind {
	case KindPrimary:
		return Primary(deps)
	case KindDevelop:
		return Develop(deps)
	default:
		return nil
	}
}

func diagnoseStep(deps Deps) Step {
	return Step{Name: "diagnose", Run: func(_ context.Context, run *Run) error {
		failed := run.FailedSteps()
		if len(failed) == 0 {
			return nil
		}
		for _, line := range DevelopGuidance {
			deps.Actions.Errorf("%s", line)
		}
		return fmt.Errorf("%w: %s", ErrDevelopFailed, strings.Join(failed, ", "))
	}}
}
