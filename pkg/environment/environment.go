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

// Package environment resolves the deployment environment of a pipeline run
// from the trigger that started it.
package environment

import (
	"fmt"
	"strings"

	"github.com/sethvargo/go-githubactions"
)

// Environment is the deployment target of a run.
type Environment string

const (
	// Production is selected by pushes to main.
	Production Environment = "production"
	// Staging is the fallback for every branch without an explicit mapping.
	Staging Environment = "staging"
	// Develop is selected by pushes to develop.
	Develop Environment = "develop"
)

// Default is returned when neither the manual input nor the branch decides.
const Default = Staging

// Event names understood by the resolver.
const (
	EventDispatch = "workflow_dispatch"
	EventPush     = "push"
)

var branchEnvironments = map[string]Environment{
	"main":    Production,
	"develop": Develop,
}

// All returns every supported environment in a stable order.
func All() []Environment {
	return []Environment{Production, Staging, Develop}
}

// Parse converts a user supplied value into an Environment.
func Parse(raw string) (Environment, error) {
	value := Environment(strings.ToLower(strings.TrimSpace(raw)))
	for _, env := range All() {
		if value == env {
			return env, nil
		}
	}
	return "", fmt.Errorf("unknown environment %q (supported: %s, %s, %s)", raw, Production, Staging, Develop)
}

func (e Environment) String() string {
	return string(e)
}

// Source records which rule decided the environment.
type Source string

const (
	SourceInput   Source = "input"
	SourceBranch  Source = "branch"
	SourceDefault Source = "default"
)

// Trigger describes what started a run.
type Trigger struct {
	// Event is the host event name, e.g. workflow_dispatch or push.
	Event string
	// Ref is either a full ref (refs/heads/main) or a bare branch name.
	Ref string
	// Input is the optional environment selected on manual dispatch.
	Input string
}

// Manual reports whether the trigger is a manual dispatch.
func (t Trigger) Manual() bool {
	return strings.EqualFold(strings.TrimSpace(t.Event), EventDispatch)
}

// Branch returns the branch name carried by the trigger.
func (t Trigger) Branch() string {
	return BranchName(t.Ref)
}

// Resolve returns exactly one environment for the trigger. It never fails:
// unknown branches resolve to staging.
func Resolve(t Trigger) Environment {
	env, _ := ResolveWithReason(t)
	return env
}

// ResolveWithReason is Resolve plus the rule that produced the result.
// Precedence is manual input, then branch mapping, then the default.
func ResolveWithReason(t Trigger) (Environment, Source) {
	if t.Manual() && strings.TrimSpace(t.Input) != "" {
		if env, err := Parse(t.Input); err == nil {
			return env, SourceInput
		}
	}

	if env, ok := branchEnvironments[t.Branch()]; ok {
		return env, SourceBranch
	}

	return Default, SourceDefault
}

// BranchName strips the refs/heads/ prefix from a ref. Tag and pull request
// refs are returned unchanged.
func BranchName(ref string) string {
	ref = strings.TrimSpace(ref)
	return strings.TrimPrefix(ref, "refs/heads/")
}

// FromActions builds a Trigger from the GitHub Actions runtime context. The
// dispatch input is read from the event payload and falls back to the
// INPUT_ENVIRONMENT variable.
func FromActions(action *githubactions.Action) (Trigger, error) {
	ghctx, err := action.Context()
	if err != nil {
		return Trigger{}, fmt.Errorf("reading actions context: %w", err)
	}

	trigger := Trigger{
		Event: ghctx.EventName,
		Ref:   ghctx.Ref,
	}
	if trigger.Ref == "" {
		trigger.Ref = ghctx.RefName
	}

	if inputs, ok := ghctx.Event["inputs"].(map[string]any); ok {
		if value, ok := inputs["environment"].(string); ok {
			trigger.Input = value
		}
	}
	if trigger.Input == "" {
		trigger.Input = action.GetInput("environment")
	}

	return trigger, nil
}
