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

package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v70/github"

	"github.com/docker/image-pipeline/internal/logger"
)

var versionTagPattern = regexp.MustCompile(`^v\d+(\.\d+)*$`)

func New() *Client {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return NewUnauthenticated()
	}

	return &Client{
		gh: github.NewClient(nil).WithAuthToken(token),
	}
}

func NewUnauthenticated() *Client {
	return &Client{
		gh: github.NewClient(nil),
	}
}

// NewWithBaseURL talks to a GitHub API at baseURL, e.g. a test server or
// GitHub Enterprise.
func NewWithBaseURL(httpClient *http.Client, baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, err
	}
	gh := github.NewClient(httpClient)
	gh.BaseURL = u
	return &Client{gh: gh}, nil
}

type Client struct {
	gh *github.Client
}

// GetTagCommitSHA returns the commit a tag points to. Annotated tags are
// dereferenced.
func (c *Client) GetTagCommitSHA(ctx context.Context, repository, tag string) (string, error) {
	owner, repo, err := SplitRepository(repository)
	if err != nil {
		return "", err
	}

	for {
		ref, _, err := c.gh.Git.GetRef(ctx, owner, repo, "tags/"+tag)
		if sleepOnRateLimitError(ctx, err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("tag %s of %s/%s: %w", tag, owner, repo, err)
		}
		return c.dereference(ctx, owner, repo, ref.GetObject())
	}
}

// GetVersionForCommitSHA returns the tag that best names sha. Version tags
// such as v4 win over longer ones such as v4.1.0; other tags are used only
// when no version tag matches. An empty string means no tag points at sha.
func (c *Client) GetVersionForCommitSHA(ctx context.Context, repository, sha string) (string, error) {
	owner, repo, err := SplitRepository(repository)
	if err != nil {
		return "", err
	}

	refs, err := c.listTags(ctx, owner, repo)
	if err != nil {
		return "", err
	}

	var matching []string
	for _, ref := range refs {
		commit, err := c.dereference(ctx, owner, repo, ref.GetObject())
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Warn().Err(err).Str("ref", ref.GetRef()).Msg("Skipping tag that could not be resolved to a commit")
			continue
		}
		if strings.EqualFold(commit, sha) {
			matching = append(matching, strings.TrimPrefix(ref.GetRef(), "refs/tags/"))
		}
	}
	return PreferredVersion(matching), nil
}

func (c *Client) listTags(ctx context.Context, owner, repo string) ([]*github.Reference, error) {
	opts := &github.ReferenceListOptions{
		Ref:         "tags",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var all []*github.Reference
	for {
		refs, resp, err := c.gh.Git.ListMatchingRefs(ctx, owner, repo, opts)
		if sleepOnRateLimitError(ctx, err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("listing tags of %s/%s: %w", owner, repo, err)
		}
		all = append(all, refs...)
		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) dereference(ctx context.Context, owner, repo string, object *github.GitObject) (string, error) {
	if object.GetType() != "tag" {
		return object.GetSHA(), nil
	}

	for {
		tag, _, err := c.gh.Git.GetTag(ctx, owner, repo, object.GetSHA())
		if sleepOnRateLimitError(ctx, err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("annotated tag %s of %s/%s: %w", object.GetSHA(), owner, repo, err)
		}
		return tag.GetObject().GetSHA(), nil
	}
}

// PreferredVersion picks the simplest version tag out of tags.
func PreferredVersion(tags []string) string {
	var versions []string
	for _, tag := range tags {
		if versionTagPattern.MatchString(tag) {
			versions = append(versions, tag)
		}
	}
	if len(versions) == 0 {
		if len(tags) == 0 {
			return ""
		}
		return tags[0]
	}

	sort.Slice(versions, func(i, j int) bool {
		di, dj := strings.Count(versions[i], "."), strings.Count(versions[j], ".")
		if di != dj {
			return di < dj
		}
		return versions[i] < versions[j]
	})
	return versions[0]
}

func sleepOnRateLimitError(ctx context.Context, err error) bool {
	var rateLimitErr *github.RateLimitError
	if !errors.As(err, &rateLimitErr) {
		return false
	}

	sleepDelay := time.Until(rateLimitErr.Rate.Reset.Time)
	logger.Warn().Dur("wait", sleepDelay).Msg("GitHub rate limit exceeded, waiting for reset")

	select {
	case <-ctx.Done():
		return false
	case <-time.After(sleepDelay):
	}

	return true
}

// SplitRepository returns owner and repository from an action reference
// (owner/repo/sub/path) or a repository URL.
func SplitRepository(raw string) (string, string, error) {
	path := raw
	if strings.Contains(raw, "://") {
		parsedURL, err := url.Parse(raw)
		if err != nil {
			return "", "", err
		}
		path = parsedURL.Path
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository doesn't contain enough segments: %s", raw)
	}

	return parts[0], parts[1], nil
}
