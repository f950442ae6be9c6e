package image

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/image-pipeline/internal/execx"
	"github.com/docker/image-pipeline/pkg/environment"
)

func testTags(t *testing.T) TagRequest {
	t.Helper()
	return TagRequest{Registry: "us-docker.pkg.dev/acme/images", Name: "api", Version: "1.0.0", Environment: environment.Production, Commit: commit}
}

func TestLogin(t *testing.T) {
	rec := &execx.Recorder{}
	builder := NewBuilder(rec)

	require.NoError(t, builder.Login(context.Background(), "us-docker.pkg.dev", "ya29.token"))
	require.Len(t, rec.Commands, 1)

	cmd := rec.Commands[0]
	assert.Equal(t, "docker login us-docker.pkg.dev --username oauth2accesstoken --password-stdin", cmd.String())
	stdin, err := io.ReadAll(cmd.Stdin)
	require.NoError(t, err)
	assert.Equal(t, "ya29.token", string(stdin))

	require.Error(t, builder.Login(context.Background(), "", "token"))
	require.Error(t, builder.Login(context.Background(), "host", ""))
}

func TestBuildAndPush(t *testing.T) {
	tags, err := Tags(testTags(t))
	require.NoError(t, err)

	metadataFile := filepath.Join(t.TempDir(), "metadata.json")
	rec := &execx.Recorder{Fail: func(execx.Command) error {
		return os.WriteFile(metadataFile, []byte(`{"containerimage.digest":"sha256:abc","image.name":"api"}`), 0o644)
	}}

	result, err := NewBuilder(rec).BuildAndPush(context.Background(), BuildRequest{
		Context:      ".",
		Dockerfile:   "Dockerfile",
		Platform:     "linux/amd64",
		Tags:         tags,
		Labels:       map[string]string{LabelTitle: "api", LabelRevision: commit},
		MetadataFile: metadataFile,
	})
	require.NoError(t, err)
	assert.Equal(t, "sha256:abc", result.Digest)

	want := []string{
		"buildx", "build", "--platform", "linux/amd64", "--push",
		"--file", "Dockerfile",
		"--metadata-file", metadataFile,
		"--tag", "us-docker.pkg.dev/acme/images/api:1.0.0",
		"--tag", "us-docker.pkg.dev/acme/images/api:production-4f2c9a1",
		"--tag", "us-docker.pkg.dev/acme/images/api:sha-4f2c9a1",
		"--label", LabelRevision + "=" + commit,
		"--label", LabelTitle + "=api",
		".",
	}
	require.Len(t, rec.Commands, 1)
	if diff := cmp.Diff(want, rec.Commands[0].Args); diff != "" {
		t.Errorf("BuildArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildAndPushFailure(t *testing.T) {
	tags, err := Tags(testTags(t))
	require.NoError(t, err)

	rec := &execx.Recorder{Fail: func(execx.Command) error { return errors.New("exit status 1") }}
	_, err = NewBuilder(rec).BuildAndPush(context.Background(), BuildRequest{Platform: "linux/amd64", Tags: tags})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "building us-docker.pkg.dev/acme/images/api")
}

func TestBuildAndPushRejectsMultiplePlatforms(t *testing.T) {
	tags, err := Tags(testTags(t))
	require.NoError(t, err)

	rec := &execx.Recorder{}
	_, err = NewBuilder(rec).BuildAndPush(context.Background(), BuildRequest{Platform: "linux/amd64,linux/arm64", Tags: tags})
	require.Error(t, err)
	assert.Empty(t, rec.Commands)
}
