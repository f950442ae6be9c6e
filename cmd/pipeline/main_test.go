package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/image-pipeline/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Flags are package level; reset the ones these tests touch.
	flagEnvironment, flagRef, flagEvent, flagSHA = "", "", "", ""
	flagRegistry, flagName, flagVersion = "", "", ""
	for _, cmd := range []string{"environment", "ref", "event"} {
		if f := resolveCmd.Flags().Lookup(cmd); f != nil {
			f.Changed = false
		}
	}
	for _, cmd := range []string{"environment", "sha", "registry", "name", "version"} {
		if f := tagsCmd.Flags().Lookup(cmd); f != nil {
			f.Changed = false
		}
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestResolveCommand(t *testing.T) {
	t.Setenv("GITHUB_EVENT_PATH", "")
	t.Setenv("GITHUB_OUTPUT", "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "push to main",
			args: []string{"resolve", "--event", "push", "--ref", "refs/heads/main"},
			want: "environment=production\nsource=branch\npipeline=primary\n",
		},
		{
			name: "manual override",
			args: []string{"resolve", "--ref", "refs/heads/main", "--environment", "develop"},
			want: "environment=develop\nsource=input\npipeline=primary\n",
		},
		{
			name: "unlisted branch",
			args: []string{"resolve", "--event", "push", "--ref", "refs/heads/feature/x"},
			want: "environment=staging\nsource=default\npipeline=none\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestResolveRejectsUnknownEnvironment(t *testing.T) {
	t.Setenv("GITHUB_EVENT_PATH", "")

	_, err := execute(t, "resolve", "--ref", "main", "--environment", "qa")
	var usage usageError
	require.True(t, errors.As(err, &usage), "got %v", err)
}

func TestTagsCommand(t *testing.T) {
	out, err := execute(t, "tags",
		"--environment", "staging",
		"--sha", "4f2c9a1e0b7d3c5a9e8f6d4b2a0c1e3f5a7b9d8c",
		"--registry", "europe-docker.pkg.dev/acme/images",
		"--name", "app",
	)
	require.NoError(t, err)
	assert.Equal(t, "europe-docker.pkg.dev/acme/images/app:staging-4f2c9a1\neurope-docker.pkg.dev/acme/images/app:sha-4f2c9a1\n", out)
}

func TestTagsCommandRequiresFlags(t *testing.T) {
	_, err := execute(t, "tags", "--environment", "staging")
	var usage usageError
	require.True(t, errors.As(err, &usage), "got %v", err)
	assert.Contains(t, err.Error(), "--sha is required")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0o644))
	worktree, err := repo.Worktree()
	require.NoError(t, err)
	_, err = worktree.Add("Dockerfile")
	require.NoError(t, err)
	_, err = worktree.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	cfg, err := config.Read(strings.NewReader("image:\n  name: app\n  context: " + dir + "\nsecrets:\n  backend: env\n"))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, validate(&out, cfg))
	assert.Contains(t, out.String(), "Dockerfile found")
	assert.Contains(t, out.String(), "production: CI_PRODUCTION_REGISTRY_URL")
}

func TestValidateMissingDockerfile(t *testing.T) {
	cfg, err := config.Read(strings.NewReader("image:\n  name: app\n  context: " + t.TempDir() + "\n"))
	require.NoError(t, err)

	var out bytes.Buffer
	err = validate(&out, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dockerfile")
}
