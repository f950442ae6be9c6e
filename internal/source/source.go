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

// Package source checks out the commit a pipeline run builds.
package source

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	gogit "github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
)

// ErrNotRepository is returned when the path is not inside a git repository.
var ErrNotRepository = errors.New("not a git repository")

var shaPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Repository is the checked out source tree.
type Repository struct {
	repo *gogit.Repository
	root string
}

// Open finds the repository containing path, walking up to the .git directory.
func Open(path string) (*Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
		}
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	return &Repository{repo: repo, root: wt.Filesystem.Root()}, nil
}

// FromRepository wraps an already opened repository, e.g. an in-memory one.
func FromRepository(repo *gogit.Repository, root string) *Repository {
	return &Repository{repo: repo, root: root}
}

// Root is the worktree root, used as the build context.
func (r *Repository) Root() string {
	return r.root
}

// HeadSHA returns the commit HEAD points to.
func (r *Repository) HeadSHA() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// Checkout detaches the worktree at sha. Checking out the current HEAD is a
// no-op so local runs keep their uncommitted changes.
func (r *Repository) Checkout(sha string) error {
	sha = strings.ToLower(strings.TrimSpace(sha))
	if !shaPattern.MatchString(sha) {
		return fmt.Errorf("invalid commit %q", sha)
	}

	current, err := r.HeadSHA()
	if err == nil && current == sha {
		return nil
	}

	hash := plumbing.NewHash(sha)
	if _, err := r.repo.CommitObject(hash); err != nil {
		return fmt.Errorf("commit %s not found: %w", sha, err)
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.Checkout(&gogit.CheckoutOptions{Hash: hash}); err != nil {
		return fmt.Errorf("checking out %s: %w", sha, err)
	}
	return nil
}

// IsClean reports whether the worktree has no local modifications.
func (r *Repository) IsClean() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("getting status: %w", err)
	}
	return status.IsClean(), nil
}
