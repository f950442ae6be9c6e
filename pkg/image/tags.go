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

// Package image computes image references and labels, drives docker buildx
// to build and push, and verifies the pushed tags against the registry.
package image

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/docker/image-pipeline/pkg/environment"
)

// ShortSHALength is the commit prefix used in tags.
const ShortSHALength = 7

var commitPattern = regexp.MustCompile(`^[0-9a-f]{7,64}$`)

// TagRequest carries everything a tag depends on.
type TagRequest struct {
	// Registry is host plus optional path, e.g. europe-docker.pkg.dev/acme/images.
	Registry    string
	Name        string
	Version     string
	Environment environment.Environment
	Commit      string
}

// ShortSHA validates a commit id and shortens it for tagging.
func ShortSHA(commit string) (string, error) {
	commit = strings.ToLower(strings.TrimSpace(commit))
	if !commitPattern.MatchString(commit) {
		return "", fmt.Errorf("invalid commit id %q", commit)
	}
	return commit[:ShortSHALength], nil
}

// TagNames returns the tag strings for the request, in push order:
// the explicit version, <environment>-<sha> and sha-<sha>.
func TagNames(req TagRequest) ([]string, error) {
	short, err := ShortSHA(req.Commit)
	if err != nil {
		return nil, err
	}
	if req.Environment == "" {
		return nil, errors.New("environment is required for tagging")
	}

	names := []string{
		fmt.Sprintf("%s-%s", req.Environment, short),
		"sha-" + short,
	}
	if version := strings.TrimSpace(req.Version); version != "" {
		names = append([]string{version}, names...)
	}
	return names, nil
}

// Tags builds fully qualified references for the request. Every reference is
// validated by the registry name parser.
func Tags(req TagRequest, opts ...name.Option) ([]name.Tag, error) {
	names, err := TagNames(req)
	if err != nil {
		return nil, err
	}

	repository := strings.TrimRight(strings.TrimSpace(req.Registry), "/")
	repository = strings.TrimPrefix(strings.TrimPrefix(repository, "https://"), "http://")
	if repository == "" {
		return nil, errors.New("registry is required for tagging")
	}
	repository += "/" + strings.TrimSpace(req.Name)

	tags := make([]name.Tag, 0, len(names))
	for _, tagName := range names {
		tag, err := name.NewTag(repository+":"+tagName, append([]name.Option{name.StrictValidation}, opts...)...)
		if err != nil {
			return nil, fmt.Errorf("invalid image reference %s:%s: %w", repository, tagName, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// Strings renders references as registry/name:tag.
func Strings(tags []name.Tag) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tag.String())
	}
	return out
}
