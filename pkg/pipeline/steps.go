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
	"path/filepath"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"golang.org/x/oauth2"

	"github.com/docker/image-pipeline/internal/artifacts"
	"github.com/docker/image-pipeline/internal/config"
	"github.com/docker/image-pipeline/internal/notify"
	"github.com/docker/image-pipeline/pkg/image"
	"github.com/docker/image-pipeline/pkg/scanner"
	"github.com/docker/image-pipeline/pkg/secrets"
)

// SourceTree is the checked out repository.
type SourceTree interface {
	Root() string
	HeadSHA() (string, error)
	Checkout(sha string) error
}

// TokenIssuer exchanges the CI identity for a cloud access token.
type TokenIssuer interface {
	Token(ctx context.Context, provider, serviceAccount string) (*oauth2.Token, error)
}

// ImageBuilder builds and pushes images.
type ImageBuilder interface {
	Login(ctx context.Context, host, token string) error
	BuildAndPush(ctx context.Context, req image.BuildRequest) (image.BuildResult, error)
}

// PushVerifier confirms that pushed tags resolve.
type PushVerifier interface {
	Verify(ctx context.Context, tags []name.Tag, auth authn.Authenticator) (string, error)
}

// VulnerabilityScanner drives the external scanner CLI.
type VulnerabilityScanner interface {
	Download(ctx context.Context, dir string) error
	Authenticate(ctx context.Context, creds scanner.Credentials) error
	Scan(ctx context.Context, target scanner.Target) error
}

// EventNotifier announces pushed images.
type EventNotifier interface {
	Notify(ctx context.Context, event notify.ImagePushed) error
}

// Deps wires the steps to the outside world. Factories are called from inside
// their step so that a failure to construct a client is a step failure.
type Deps struct {
	Config  config.Config
	Actions Actions

	OpenSource  func(dir string) (SourceTree, error)
	SecretStore func(ctx context.Context) (secrets.Store, error)
	Identity    func(ctx context.Context) (TokenIssuer, error)
	Builder     ImageBuilder
	Verifier    PushVerifier
	Scanner     VulnerabilityScanner

	// Archive and Notifier are optional.
	Archive  artifacts.Putter
	Notifier EventNotifier

	// WorkDir holds the build metadata file and the scanner executable.
	WorkDir string
	Now     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

var (
	errNoBundle = errors.New("secret bundle unavailable")
	errNoToken  = errors.New("access token unavailable")
	errNoTags   = errors.New("no image was pushed")
)

func checkoutStep(deps Deps) Step {
	return Step{Name: "checkout", Run: func(_ context.Context, run *Run) error {
		tree, err := deps.OpenSource(deps.Config.Image.Context)
		if err != nil {
			return err
		}
		if run.Commit == "" {
			head, err := tree.HeadSHA()
			if err != nil {
				return err
			}
			run.Commit = head
			return nil
		}
		return tree.Checkout(run.Commit)
	}}
}

func secretsStep(deps Deps) Step {
	return Step{Name: "secrets", Run: func(ctx context.Context, run *Run) error {
		store, err := deps.SecretStore(ctx)
		if err != nil {
			return fmt.Errorf("connecting to secret store: %w", err)
		}
		paths := secrets.Paths(deps.Config.Secrets.Prefix, run.Environment)
		bundle, err := secrets.Fetch(ctx, store, run.Environment, paths, deps.Actions)
		if err != nil {
			return err
		}
		run.Bundle = bundle
		return nil
	}}
}

func authenticateStep(deps Deps) Step {
	return Step{Name: "authenticate", Run: func(ctx context.Context, run *Run) error {
		if run.Bundle == nil {
			return errNoBundle
		}
		issuer, err := deps.Identity(ctx)
		if err != nil {
			return err
		}
		token, err := issuer.Token(ctx, run.Bundle.IdentityProvider(), run.Bundle.ServiceAccount())
		if err != nil {
			return err
		}
		deps.Actions.AddMask(token.AccessToken)
		run.Token = token
		return nil
	}}
}

func registryLoginStep(deps Deps) Step {
	return Step{Name: "registry-login", Run: func(ctx context.Context, run *Run) error {
		if run.Bundle == nil {
			return errNoBundle
		}
		if run.Token == nil {
			return errNoToken
		}
		return deps.Builder.Login(ctx, run.Bundle.RegistryHost(), run.Token.AccessToken)
	}}
}

func buildPushStep(deps Deps) Step {
	return Step{Name: "build-push", Run: func(ctx context.Context, run *Run) error {
		if run.Bundle == nil {
			return errNoBundle
		}
		imageConfig := deps.Config.Image
		tags, err := image.Tags(image.TagRequest{
			Registry:    run.Bundle.RegistryURL(),
			Name:        imageConfig.Name,
			Version:     imageConfig.Version,
			Environment: run.Environment,
			Commit:      run.Commit,
		})
		if err != nil {
			return err
		}
		run.Tags = tags

		result, err := deps.Builder.BuildAndPush(ctx, image.BuildRequest{
			Context:    imageConfig.Context,
			Dockerfile: imageConfig.Dockerfile,
			Platform:   imageConfig.Platform,
			Tags:       tags,
			Labels: image.Labels(image.Metadata{
				Title:       imageConfig.Name,
				Source:      imageConfig.Source,
				Commit:      run.Commit,
				Version:     imageConfig.Version,
				Environment: run.Environment,
				RunID:       run.ID,
				Created:     deps.now(),
			}),
			MetadataFile: filepath.Join(deps.WorkDir, "build-metadata.json"),
		})
		if err != nil {
			return err
		}
		run.Digest = result.Digest
		run.BuildMetadata = result.Metadata
		return nil
	}}
}

func verifyStep(deps Deps) Step {
	return Step{Name: "verify", Run: func(ctx context.Context, run *Run) error {
		if len(run.Tags) == 0 {
			return errNoTags
		}
		if run.Token == nil {
			return errNoToken
		}
		digest, err := deps.Verifier.Verify(ctx, run.Tags, image.TokenAuth(run.Token.AccessToken))
		if err != nil {
			return err
		}
		if run.Digest != "" && run.Digest != digest {
			return fmt.Errorf("registry serves %s, build reported %s", digest, run.Digest)
		}
		run.Digest = digest
		return nil
	}}
}

func scanStep(deps Deps) Step {
	return Step{Name: "scan", Policy: PolicyIgnore, Run: func(ctx context.Context, run *Run) error {
		if run.Bundle == nil {
			return errNoBundle
		}
		if len(run.Tags) == 0 {
			return errNoTags
		}
		if err := deps.Scanner.Download(ctx, deps.WorkDir); err != nil {
			return err
		}
		err := deps.Scanner.Authenticate(ctx, scanner.Credentials{
			ClientID:     run.Bundle.ScannerClientID(),
			ClientSecret: run.Bundle.ScannerClientSecret(),
		})
		if err != nil {
			return err
		}
		manifest := deps.Config.Image.Dockerfile
		if manifest == "" {
			manifest = "Dockerfile"
		}
		return deps.Scanner.Scan(ctx, scanner.Target{
			Image:    run.Tags[len(run.Tags)-1].String(),
			Manifest: filepath.Join(deps.Config.Image.Context, manifest),
			Tags: map[string]string{
				"environment": string(run.Environment),
				"commit":      run.Commit,
				"run":         run.ID,
			},
		})
	}}
}

func archiveStep(deps Deps) Step {
	return Step{Name: "archive", Policy: PolicyIgnore, Run: func(ctx context.Context, run *Run) error {
		if deps.Archive == nil {
			return ErrSkipped
		}
		steps := make(map[string]string, len(run.Outcomes))
		for _, o := range run.Outcomes {
			steps[o.Step] = string(o.Status)
		}
		return artifacts.Archive(ctx, deps.Archive, artifacts.Record{
			RunID:       run.ID,
			Environment: string(run.Environment),
			Pipeline:    string(run.Kind),
			Commit:      run.Commit,
			Images:      run.Images(),
			Digest:      run.Digest,
			Steps:       steps,
			FinishedAt:  deps.now().UTC(),
		}, run.BuildMetadata)
	}}
}

func notifyStep(deps Deps) Step {
	return Step{Name: "notify", Policy: PolicyIgnore, Run: func(ctx context.Context, run *Run) error {
		if deps.Notifier == nil {
			return ErrSkipped
		}
		if run.Digest == "" {
			return errNoTags
		}
		return deps.Notifier.Notify(ctx, notify.ImagePushed{
			RunID:       run.ID,
			Environment: string(run.Environment),
			Commit:      run.Commit,
			Images:      run.Images(),
			Digest:      run.Digest,
			PushedAt:    deps.now().UTC(),
		})
	}}
}
