package scanner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/image-pipeline/internal/execx"
)

var testOptions = Options{
	Binary:   "scanner",
	AuthArgs: []string{"auth", "--id", "{client_id}", "--secret", "{client_secret}"},
	ScanArgs: []string{"docker", "scan", "--image", "{image}", "--dockerfile", "{manifest}", "--tag", "{tag}"},
}

func downloaded(t *testing.T, rec *execx.Recorder) *Scanner {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#!/bin/sh\n"))
	}))
	t.Cleanup(server.Close)

	opts := testOptions
	opts.DownloadURL = server.URL + "/scanner"
	s := New(opts, rec, server.Client())
	require.NoError(t, s.Download(context.Background(), t.TempDir()))
	return s
}

func TestDownload(t *testing.T) {
	s := downloaded(t, &execx.Recorder{})

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, "scanner", filepath.Base(s.Path()))
	assert.NotZero(t, info.Mode()&0o100, "scanner must be executable")
}

func TestDownloadErrors(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	opts := testOptions
	opts.DownloadURL = server.URL
	err := New(opts, &execx.Recorder{}, nil).Download(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	err = New(testOptions, &execx.Recorder{}, nil).Download(context.Background(), t.TempDir())
	require.Error(t, err)
}

func TestAuthenticateAndScan(t *testing.T) {
	rec := &execx.Recorder{}
	s := downloaded(t, rec)

	require.NoError(t, s.Authenticate(context.Background(), Credentials{ClientID: "id", ClientSecret: "secret"}))
	require.NoError(t, s.Scan(context.Background(), Target{
		Image:    "us-docker.pkg.dev/acme/images/api:production-4f2c9a1",
		Manifest: "Dockerfile",
		Tags:     map[string]string{"environment": "production", "commit": "4f2c9a1"},
	}))

	require.Len(t, rec.Commands, 2)
	assert.Equal(t, s.Path(), rec.Commands[0].Name)
	if diff := cmp.Diff([]string{"auth", "--id", "id", "--secret", "secret"}, rec.Commands[0].Args); diff != "" {
		t.Errorf("auth args mismatch (-want +got):\n%s", diff)
	}
	want := []string{
		"docker", "scan",
		"--image", "us-docker.pkg.dev/acme/images/api:production-4f2c9a1",
		"--dockerfile", "Dockerfile",
		"--tag", "commit=4f2c9a1,environment=production",
	}
	if diff := cmp.Diff(want, rec.Commands[1].Args); diff != "" {
		t.Errorf("scan args mismatch (-want +got):\n%s", diff)
	}
}

func TestRunBeforeDownload(t *testing.T) {
	s := New(testOptions, &execx.Recorder{}, nil)
	require.Error(t, s.Scan(context.Background(), Target{Image: "img"}))
	require.Error(t, s.Authenticate(context.Background(), Credentials{}))
}

func TestScanFailure(t *testing.T) {
	rec := &execx.Recorder{Fail: func(execx.Command) error { return errors.New("exit status 2") }}
	s := downloaded(t, rec)

	err := s.Scan(context.Background(), Target{Image: "img:tag"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanning img:tag")
}
