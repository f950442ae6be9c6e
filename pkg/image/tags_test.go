package image

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/docker/image-pipeline/pkg/environment"
)

const commit = "4f2c9a1b7e0d3c5a8b6f1e2d3c4b5a6978695a4b"

func TestTags(t *testing.T) {
	tests := []struct {
		name    string
		req     TagRequest
		want    []string
		wantErr bool
	}{
		{
			name: "production",
			req: TagRequest{
				Registry:    "us-docker.pkg.dev/acme/images",
				Name:        "api",
				Version:     "1.2.3",
				Environment: environment.Production,
				Commit:      commit,
			},
			want: []string{
				"us-docker.pkg.dev/acme/images/api:1.2.3",
				"us-docker.pkg.dev/acme/images/api:production-4f2c9a1",
				"us-docker.pkg.dev/acme/images/api:sha-4f2c9a1",
			},
		},
		{
			name: "develop without version",
			req: TagRequest{
				Registry:    "https://europe-docker.pkg.dev/acme-dev/images/",
				Name:        "api",
				Environment: environment.Develop,
				Commit:      strings.ToUpper(commit),
			},
			want: []string{
				"europe-docker.pkg.dev/acme-dev/images/api:develop-4f2c9a1",
				"europe-docker.pkg.dev/acme-dev/images/api:sha-4f2c9a1",
			},
		},
		{
			name:    "invalid commit",
			req:     TagRequest{Registry: "r.example.com", Name: "api", Environment: environment.Staging, Commit: "HEAD"},
			wantErr: true,
		},
		{
			name:    "missing registry",
			req:     TagRequest{Name: "api", Environment: environment.Staging, Commit: commit},
			wantErr: true,
		},
		{
			name:    "invalid version tag",
			req:     TagRequest{Registry: "r.example.com", Name: "api", Version: "not valid", Environment: environment.Staging, Commit: commit},
			wantErr: true,
		},
		{
			name:    "missing environment",
			req:     TagRequest{Registry: "r.example.com", Name: "api", Commit: commit},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tags, err := Tags(tt.req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, Strings(tags)); diff != "" {
				t.Errorf("Tags() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTagsAlwaysCarryEnvironmentAndCommit(t *testing.T) {
	for _, env := range environment.All() {
		req := TagRequest{Registry: "r.example.com/team", Name: "svc", Version: "latest", Environment: env, Commit: commit}

		first, err := TagNames(req)
		require.NoError(t, err)
		second, err := TagNames(req)
		require.NoError(t, err)
		require.Equal(t, first, second, "tags must be deterministic")

		joined := strings.Join(first, ",")
		require.Contains(t, joined, string(env))
		require.Contains(t, joined, commit[:ShortSHALength])
	}
}
