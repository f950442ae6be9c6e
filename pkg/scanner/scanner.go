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

// Package scanner downloads the vulnerability scanner CLI and runs it against
// a pushed image.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docker/image-pipeline/internal/execx"
)

// Options configures the scanner CLI.
type Options struct {
	// DownloadURL points at the scanner executable.
	DownloadURL string
	// Binary is the file name the executable is stored under.
	Binary string
	// AuthArgs may reference {client_id} and {client_secret}.
	AuthArgs []string
	// ScanArgs may reference {image}, {manifest} and {tag}.
	ScanArgs []string
}

// Credentials authenticate the scanner against its service.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Target is what gets scanned.
type Target struct {
	// Image is the pushed reference.
	Image string
	// Manifest is the build manifest (Dockerfile) of the image.
	Manifest string
	// Tags label the scan result, rendered as key=value.
	Tags map[string]string
}

// Scanner is a downloaded scanner executable.
type Scanner struct {
	opts   Options
	runner execx.Runner
	client *http.Client
	path   string
}

// New returns a scanner that still has to be downloaded.
func New(opts Options, runner execx.Runner, client *http.Client) *Scanner {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Binary == "" {
		opts.Binary = "scanner"
	}
	return &Scanner{opts: opts, runner: runner, client: client}
}

// Path is the local executable, empty before Download.
func (s *Scanner) Path() string {
	return s.path
}

// Download fetches the executable into dir and marks it executable.
func (s *Scanner) Download(ctx context.Context, dir string) error {
	if s.opts.DownloadURL == "" {
		return errors.New("scanner download URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.DownloadURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading scanner: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading scanner: unexpected status %d", resp.StatusCode)
	}

	path := filepath.Join(dir, s.opts.Binary)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	s.path = path
	return nil
}

// Authenticate logs the scanner in with the bundle credentials.
func (s *Scanner) Authenticate(ctx context.Context, creds Credentials) error {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return errors.New("scanner client id and secret are required")
	}
	args := expand(s.opts.AuthArgs, strings.NewReplacer(
		"{client_id}", creds.ClientID,
		"{client_secret}", creds.ClientSecret,
	))
	return s.run(ctx, "authenticating scanner", args)
}

// Scan scans target and tags the result.
func (s *Scanner) Scan(ctx context.Context, target Target) error {
	if target.Image == "" {
		return errors.New("image reference is required")
	}
	args := expand(s.opts.ScanArgs, strings.NewReplacer(
		"{image}", target.Image,
		"{manifest}", target.Manifest,
		"{tag}", RenderTags(target.Tags),
	))
	return s.run(ctx, "scanning "+target.Image, args)
}

func (s *Scanner) run(ctx context.Context, what string, args []string) error {
	if s.path == "" {
		return errors.New("scanner has not been downloaded")
	}
	if err := s.runner.Run(ctx, execx.Command{Name: s.path, Args: args}); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// RenderTags joins tags as sorted key=value pairs separated by commas.
func RenderTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+tags[key])
	}
	return strings.Join(pairs, ",")
}

func expand(args []string, replacer *strings.Replacer) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		out = append(out, replacer.Replace(arg))
	}
	return out
}
