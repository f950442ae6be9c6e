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
	"fmt"
	"os"

	"github.com/sethvargo/go-githubactions"

	"github.com/docker/image-pipeline/internal/artifacts"
	"github.com/docker/image-pipeline/internal/config"
	"github.com/docker/image-pipeline/internal/execx"
	"github.com/docker/image-pipeline/internal/identity"
	"github.com/docker/image-pipeline/internal/logger"
	"github.com/docker/image-pipeline/internal/notify"
	"github.com/docker/image-pipeline/internal/source"
	"github.com/docker/image-pipeline/pkg/environment"
	"github.com/docker/image-pipeline/pkg/image"
	"github.com/docker/image-pipeline/pkg/pipeline"
	"github.com/docker/image-pipeline/pkg/scanner"
	"github.com/docker/image-pipeline/pkg/secrets"
)

// run wires the pipeline to docker, the secret store, the identity provider
// and the optional artifact and notification backends, then dispatches.
func run(ctx context.Context, cfg config.Config, action *githubactions.Action, trigger environment.Trigger, commit string) error {
	workdir, err := os.MkdirTemp("", "image-pipeline-")
	if err != nil {
		return fmt.Errorf("create temporary directory: %w", err)
	}
	defer os.RemoveAll(workdir)

	runner := execx.NewOSRunner()
	deps := pipeline.Deps{
		Config:  cfg,
		Actions: action,
		OpenSource: func(dir string) (pipeline.SourceTree, error) {
			return source.Open(dir)
		},
		SecretStore: func(ctx context.Context) (secrets.Store, error) {
			return newSecretStore(ctx, cfg.Secrets)
		},
		Identity: func(ctx context.Context) (pipeline.TokenIssuer, error) {
			supplier := &identity.ActionsTokenSupplier{Source: action}
			return identity.NewFederator(ctx, identity.Config{
				TokenURL:     cfg.Identity.TokenURL,
				Scopes:       cfg.Identity.Scopes,
				VerifyIssuer: cfg.Identity.VerifyIssuer,
				Issuer:       cfg.Identity.Issuer,
			}, supplier)
		},
		Builder:  image.NewBuilder(runner),
		Verifier: image.NewVerifier(nil),
		Scanner: scanner.New(scanner.Options{
			DownloadURL: cfg.Scanner.DownloadURL,
			Binary:      cfg.Scanner.Binary,
			AuthArgs:    cfg.Scanner.AuthArgs,
			ScanArgs:    cfg.Scanner.ScanArgs,
		}, runner, nil),
		WorkDir: workdir,
	}

	if cfg.Artifacts.Enabled() {
		store, err := artifacts.New(artifacts.Config{
			Endpoint:  cfg.Artifacts.Endpoint,
			Bucket:    cfg.Artifacts.Bucket,
			AccessKey: cfg.Artifacts.AccessKey,
			SecretKey: cfg.Artifacts.SecretKey,
			Region:    cfg.Artifacts.Region,
			UseSSL:    cfg.Artifacts.UseSSL,
		})
		if err != nil {
			return err
		}
		deps.Archive = store
	}

	if cfg.Notify.Enabled() {
		notifier, err := notify.Connect(cfg.Notify.NatsURL, cfg.Notify.Subject)
		if err != nil {
			// Notifications never fail a run.
			logger.Warn().Err(err).Msg("notifications disabled")
		} else {
			defer notifier.Close()
			deps.Notifier = notifier
		}
	}

	opts := []pipeline.DispatcherOption{pipeline.WithReport(os.Stderr)}
	if os.Getenv("GITHUB_STEP_SUMMARY") != "" {
		opts = append(opts, pipeline.WithStepSummary(action.AddStepSummary))
	}

	result, err := pipeline.NewDispatcher(deps, opts...).Run(ctx, trigger, commit, os.Getenv("GITHUB_RUN_ID"))
	if err != nil {
		return err
	}
	if result.Skipped() {
		fmt.Printf("No pipeline for %s (environment %s)\n", trigger.Ref, result.Environment)
	}
	return nil
}

func newSecretStore(ctx context.Context, cfg config.Secrets) (secrets.Store, error) {
	switch cfg.Backend {
	case "env":
		return secrets.EnvStore{}, nil
	default:
		return secrets.NewOnePasswordStore(ctx, cfg.TokenFile, version)
	}
}
