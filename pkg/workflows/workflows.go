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

// Package workflows pins the actions used by workflow files to commit SHAs.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// uses: owner/repo/path@v4 with an optional trailing comment.
	versionPattern = regexp.MustCompile(`^(\s+(?:-\s+)?uses:\s+)([\w-]+/[\w-]+(?:/[\w-]+)*?)@(v?\d+(?:\.\d+)*)\s*(#.*)?$`)
	// uses: owner/repo/path@<40 hex> with an optional trailing comment.
	shaPattern = regexp.MustCompile(`^(\s+(?:-\s+)?uses:\s+)([\w-]+/[\w-]+(?:/[\w-]+)*?)@([a-f0-9]{40})\s*(#.*)?$`)
)

// Resolver looks up tags on the action's repository. *github.Client
// implements it.
type Resolver interface {
	GetTagCommitSHA(ctx context.Context, repository, tag string) (string, error)
	GetVersionForCommitSHA(ctx context.Context, repository, sha string) (string, error)
}

// ChangeKind tells a pin apart from an added version comment.
type ChangeKind string

const (
	ChangePinned    ChangeKind = "pinned"
	ChangeAnnotated ChangeKind = "annotated"
)

// Change is one rewritten line.
type Change struct {
	Line    int
	Kind    ChangeKind
	Action  string
	Version string
	SHA     string
}

// Unresolved is a reference that could not be looked up. It is left as is.
type Unresolved struct {
	Line   int
	Action string
	Ref    string
	Err    error
}

// Result is the outcome for one file.
type Result struct {
	Path       string
	Changes    []Change
	Unresolved []Unresolved
}

// Pinner rewrites workflow files. Lookups are cached across files.
type Pinner struct {
	resolver Resolver
	tags     map[string]string
	versions map[string]string
}

func NewPinner(resolver Resolver) *Pinner {
	return &Pinner{
		resolver: resolver,
		tags:     map[string]string{},
		versions: map[string]string{},
	}
}

// Pin rewrites content line by line. Version references become SHA pins with
// the version kept as a comment; SHA pins without a comment get the matching
// version added. Everything else is left untouched.
func (p *Pinner) Pin(ctx context.Context, content string) (string, Result, error) {
	var result Result
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return "", Result{}, err
		}

		if match := shaPattern.FindStringSubmatch(line); match != nil {
			prefix, action, sha, comment := match[1], match[2], match[3], match[4]
			if strings.TrimSpace(strings.TrimPrefix(comment, "#")) != "" {
				continue
			}
			version, err := p.versionFor(ctx, action, sha)
			if err != nil || version == "" {
				result.Unresolved = append(result.Unresolved, Unresolved{Line: i + 1, Action: action, Ref: sha, Err: err})
				continue
			}
			lines[i] = fmt.Sprintf("%s%s@%s  # %s", prefix, action, sha, version)
			result.Changes = append(result.Changes, Change{Line: i + 1, Kind: ChangeAnnotated, Action: action, Version: version, SHA: sha})
			continue
		}

		if match := versionPattern.FindStringSubmatch(line); match != nil {
			prefix, action, version, comment := match[1], match[2], match[3], match[4]
			sha, err := p.commitFor(ctx, action, version)
			if err != nil || sha == "" {
				result.Unresolved = append(result.Unresolved, Unresolved{Line: i + 1, Action: action, Ref: version, Err: err})
				continue
			}
			if comment == "" {
				comment = "# " + version
			}
			lines[i] = fmt.Sprintf("%s%s@%s  %s", prefix, action, sha, comment)
			result.Changes = append(result.Changes, Change{Line: i + 1, Kind: ChangePinned, Action: action, Version: version, SHA: sha})
		}
	}

	return strings.Join(lines, "\n"), result, nil
}

func (p *Pinner) commitFor(ctx context.Context, action, version string) (string, error) {
	key := repositoryOf(action) + "@" + version
	if sha, ok := p.tags[key]; ok {
		return sha, nil
	}
	sha, err := p.resolver.GetTagCommitSHA(ctx, action, version)
	if err != nil {
		return "", err
	}
	p.tags[key] = sha
	return sha, nil
}

func (p *Pinner) versionFor(ctx context.Context, action, sha string) (string, error) {
	key := repositoryOf(action) + "@" + sha
	if version, ok := p.versions[key]; ok {
		return version, nil
	}
	version, err := p.resolver.GetVersionForCommitSHA(ctx, action, sha)
	if err != nil {
		return "", err
	}
	p.versions[key] = version
	return version, nil
}

// repositoryOf drops the sub path of an action reference.
func repositoryOf(action string) string {
	parts := strings.SplitN(action, "/", 3)
	if len(parts) < 2 {
		return action
	}
	return parts[0] + "/" + parts[1]
}

// PinFile pins the file at path. With dryRun the file is not written. A
// rewrite that would no longer parse as YAML is refused.
func (p *Pinner) PinFile(ctx context.Context, path string, dryRun bool) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}

	updated, result, err := p.Pin(ctx, string(content))
	if err != nil {
		return Result{}, err
	}
	result.Path = path
	if len(result.Changes) == 0 || dryRun {
		return result, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(updated), &doc); err != nil {
		return Result{}, fmt.Errorf("%s: rewritten workflow is not valid YAML: %w", path, err)
	}

	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return Result{}, err
	}
	return result, nil
}

// Files returns path itself when it is a file, otherwise the *.yml and
// *.yaml files directly inside it, sorted.
func Files(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, errors.New("no workflow files found in " + path)
	}
	sort.Strings(files)
	return files, nil
}
