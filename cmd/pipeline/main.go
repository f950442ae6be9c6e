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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/sethvargo/go-githubactions"
	"github.com/spf13/cobra"

	"github.com/docker/image-pipeline/internal/config"
	"github.com/docker/image-pipeline/internal/logger"
	"github.com/docker/image-pipeline/pkg/environment"
	"github.com/docker/image-pipeline/pkg/image"
	"github.com/docker/image-pipeline/pkg/pipeline"
)

// version is set at build time.
var version = "dev"

const (
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks errors caused by bad invocations.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

var (
	flagEnvironment string
	flagRef         string
	flagEvent       string
	flagSHA         string
	flagInteractive bool
	flagConfig      string
	flagDebug       bool

	flagRegistry string
	flagName     string
	flagVersion  string
)

var rootCmd = &cobra.Command{
	Use:     "pipeline",
	Short:   "Build, push and scan the container image for the resolved environment",
	Version: version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve the environment and run the pipeline selected by the branch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		action := githubactions.New()
		trigger, err := triggerFromFlags(cmd, action)
		if err != nil {
			return err
		}

		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		level := cfg.Log.Level
		if flagDebug {
			level = "debug"
		}
		if err := logger.Init(logger.Options{Level: level, File: cfg.Log.File, Console: os.Stderr}); err != nil {
			return err
		}
		defer logger.CloseFileWriter()

		commit := strings.TrimSpace(flagSHA)
		if commit == "" {
			commit = os.Getenv("GITHUB_SHA")
		}
		return run(cmd.Context(), cfg, action, trigger, commit)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the resolved environment, its source and the selected pipeline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		action := githubactions.New()
		trigger, err := triggerFromFlags(cmd, action)
		if err != nil {
			return err
		}

		env, source := environment.ResolveWithReason(trigger)
		kind, ok := pipeline.Select(trigger.Ref)
		selected := string(kind)
		if !ok {
			selected = "none"
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "environment=%s\n", env)
		fmt.Fprintf(out, "source=%s\n", source)
		fmt.Fprintf(out, "pipeline=%s\n", selected)
		if os.Getenv("GITHUB_OUTPUT") != "" {
			action.SetOutput("environment", string(env))
		}
		return nil
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Print the image references a run would push",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range []string{"environment", "sha", "registry", "name"} {
			if !cmd.Flags().Changed(name) {
				return usagef("--%s is required", name)
			}
		}
		env, err := environment.Parse(flagEnvironment)
		if err != nil {
			return usageError{err: err}
		}
		tags, err := image.Tags(image.TagRequest{
			Registry:    flagRegistry,
			Name:        flagName,
			Version:     flagVersion,
			Environment: env,
			Commit:      flagSHA,
		})
		if err != nil {
			return usageError{err: err}
		}
		for _, ref := range image.Strings(tags) {
			fmt.Fprintln(cmd.OutOrStdout(), ref)
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, resolveCmd} {
		cmd.Flags().StringVar(&flagEnvironment, "environment", "", "Environment to deploy to; implies a manual dispatch unless --event is given.")
		cmd.Flags().StringVar(&flagRef, "ref", "", "Git ref that triggered the run (defaults to GITHUB_REF).")
		cmd.Flags().StringVar(&flagEvent, "event", "", "Trigger event, push or workflow_dispatch (defaults to GITHUB_EVENT_NAME).")
		cmd.Flags().BoolVar(&flagInteractive, "interactive", false, "Prompt for the environment.")
	}
	runCmd.Flags().StringVar(&flagSHA, "sha", "", "Commit to build (defaults to GITHUB_SHA, then HEAD).")
	runCmd.Flags().StringVar(&flagConfig, "config", "", "Path to pipeline.yaml.")
	runCmd.Flags().BoolVar(&flagDebug, "debug", false, "Enable debug logging.")

	tagsCmd.Flags().StringVar(&flagEnvironment, "environment", "", "Environment the image is built for.")
	tagsCmd.Flags().StringVar(&flagSHA, "sha", "", "Commit the image is built from.")
	tagsCmd.Flags().StringVar(&flagRegistry, "registry", "", "Registry repository, e.g. europe-docker.pkg.dev/acme/images.")
	tagsCmd.Flags().StringVar(&flagName, "name", "", "Image name.")
	tagsCmd.Flags().StringVar(&flagVersion, "version", "", "Explicit version tag.")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})
	rootCmd.AddCommand(runCmd, resolveCmd, tagsCmd)
}

// triggerFromFlags starts from the CI host's context and applies overrides.
func triggerFromFlags(cmd *cobra.Command, action *githubactions.Action) (environment.Trigger, error) {
	trigger, err := environment.FromActions(action)
	if err != nil {
		return environment.Trigger{}, err
	}
	if cmd.Flags().Changed("ref") {
		trigger.Ref = flagRef
	}
	if cmd.Flags().Changed("event") {
		trigger.Event = flagEvent
	}

	if flagInteractive {
		selected, err := promptEnvironment()
		if err != nil {
			return environment.Trigger{}, err
		}
		flagEnvironment = string(selected)
	}

	if flagEnvironment != "" {
		env, err := environment.Parse(flagEnvironment)
		if err != nil {
			return environment.Trigger{}, usageError{err: err}
		}
		trigger.Input = string(env)
		if !cmd.Flags().Changed("event") {
			trigger.Event = environment.EventDispatch
		}
	}

	if strings.TrimSpace(trigger.Ref) == "" {
		return environment.Trigger{}, usagef("no ref: pass --ref or run inside GitHub Actions")
	}
	return trigger, nil
}

func promptEnvironment() (environment.Environment, error) {
	options := make([]string, 0, len(environment.All()))
	for _, env := range environment.All() {
		options = append(options, string(env))
	}

	selected := string(environment.Default)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Environment").
				Description("Select the environment to deploy to").
				Options(huh.NewOptions(options...)...).
				Value(&selected),
		),
	).WithTheme(huh.ThemeCharm())
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("environment prompt: %w", err)
	}
	return environment.Parse(selected)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		exitWithError(err)
	}
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var usage usageError
	if errors.As(err, &usage) {
		os.Exit(exitUsage)
	}
	os.Exit(exitFailure)
}
