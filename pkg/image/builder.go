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

package image

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/docker/image-pipeline/internal/execx"
)

const (
	dockerExecutable = "docker"

	// TokenUsername is the docker login user for OAuth2 access tokens.
	TokenUsername = "oauth2accesstoken"

	metadataDigestKey = "containerimage.digest"
)

// BuildRequest describes one buildx invocation.
type BuildRequest struct {
	// Context is the build context, the repository root.
	Context    string
	Dockerfile string
	// Platform is the single target platform, e.g. linux/amd64.
	Platform string
	Tags     []name.Tag
	Labels   map[string]string
	// MetadataFile receives the buildx build manifest.
	MetadataFile string
}

// BuildResult is what a successful push reports.
type BuildResult struct {
	Digest   string
	Metadata map[string]any
}

// Builder shells out to docker.
type Builder struct {
	runner execx.Runner
}

func NewBuilder(runner execx.Runner) *Builder {
	return &Builder{runner: runner}
}

// Login authenticates docker against host with an OAuth2 access token. The
// token is passed on stdin so it never shows up in the process list.
func (b *Builder) Login(ctx context.Context, host, token string) error {
	if host == "" {
		return errors.New("registry host is required")
	}
	if token == "" {
		return errors.New("access token is required")
	}
	return b.runner.Run(ctx, execx.Command{
		Name:  dockerExecutable,
		Args:  []string{"login", host, "--username", TokenUsername, "--password-stdin"},
		Stdin: strings.NewReader(token),
	})
}

// BuildArgs renders the buildx command line for req.
func BuildArgs(req BuildRequest) []string {
	args := []string{"buildx", "build", "--platform", req.Platform, "--push"}
	if req.Dockerfile != "" {
		args = append(args, "--file", req.Dockerfile)
	}
	if req.MetadataFile != "" {
		args = append(args, "--metadata-file", req.MetadataFile)
	}
	for _, tag := range req.Tags {
		args = append(args, "--tag", tag.String())
	}
	for _, key := range sortedKeys(req.Labels) {
		args = append(args, "--label", key+"="+req.Labels[key])
	}
	buildContext := req.Context
	if buildContext == "" {
		buildContext = "."
	}
	return append(args, buildContext)
}

// BuildAndPush builds the image for a single platform and pushes every tag.
func (b *Builder) BuildAndPush(ctx context.Context, req BuildRequest) (BuildResult, error) {
	if len(req.Tags) == 0 {
		return BuildResult{}, errors.New("at least one tag is required")
	}
	if strings.Contains(req.Platform, ",") {
		return BuildResult{}, fmt.Errorf("exactly one platform is supported, got %q", req.Platform)
	}

	if err := b.runner.Run(ctx, execx.Command{Name: dockerExecutable, Args: BuildArgs(req)}); err != nil {
		return BuildResult{}, fmt.Errorf("building %s: %w", req.Tags[0].Context().Name(), err)
	}

	if req.MetadataFile == "" {
		return BuildResult{}, nil
	}
	return ReadMetadata(req.MetadataFile)
}

// ReadMetadata parses the file written by buildx --metadata-file.
func ReadMetadata(path string) (BuildResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return BuildResult{}, fmt.Errorf("reading build metadata: %w", err)
	}

	var metadata map[string]any
	if err := json.Unmarshal(content, &metadata); err != nil {
		return BuildResult{}, fmt.Errorf("decoding build metadata: %w", err)
	}

	digest, _ := metadata[metadataDigestKey].(string)
	return BuildResult{Digest: digest, Metadata: metadata}, nil
}
