package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/image-pipeline/pkg/environment"
)

type mapStore map[string]string

func (m mapStore) Resolve(_ context.Context, reference string) (string, error) {
	value, ok := m[reference]
	if !ok {
		return "", errors.New("not found")
	}
	return value, nil
}

type recordingMasker struct {
	masked []string
}

func (r *recordingMasker) AddMask(value string) {
	r.masked = append(r.masked, value)
}

func developStore() mapStore {
	return mapStore{
		"op://ci-develop/registry/url":             "europe-docker.pkg.dev/acme-dev/images",
		"op://ci-develop/registry/region":          "europe-west1",
		"op://ci-develop/identity/provider":        "projects/123/locations/global/workloadIdentityPools/gh/providers/gh",
		"op://ci-develop/identity/service-account": "ci@acme-dev.iam.gserviceaccount.com",
		"op://ci-develop/scanner/client-id":        "client-id\n",
		"op://ci-develop/scanner/client-secret":    "s3cr3t",
	}
}

func TestPaths(t *testing.T) {
	paths := Paths("op://ci-{environment}/", environment.Production)
	assert.Len(t, paths, len(Keys()))
	assert.Equal(t, "op://ci-production/registry/url", paths[KeyRegistryURL])
	assert.Equal(t, "op://ci-production/scanner/client-secret", paths[KeyScannerClientSecret])
}

func TestFetch(t *testing.T) {
	masker := &recordingMasker{}
	bundle, err := Fetch(context.Background(), developStore(), environment.Develop, Paths("op://ci-{environment}", environment.Develop), masker)
	require.NoError(t, err)

	assert.Equal(t, environment.Develop, bundle.Environment())
	assert.Equal(t, "europe-docker.pkg.dev/acme-dev/images", bundle.RegistryURL())
	assert.Equal(t, "europe-docker.pkg.dev", bundle.RegistryHost())
	assert.Equal(t, "europe-west1", bundle.Region())
	assert.Equal(t, "ci@acme-dev.iam.gserviceaccount.com", bundle.ServiceAccount())
	assert.Equal(t, "client-id", bundle.ScannerClientID(), "values are trimmed")
	assert.Equal(t, "s3cr3t", bundle.ScannerClientSecret())
	assert.Len(t, masker.masked, len(Keys()))
	assert.Contains(t, masker.masked, "s3cr3t")
}

func TestFetchScopedToEnvironment(t *testing.T) {
	_, err := Fetch(context.Background(), developStore(), environment.Production, Paths("op://ci-{environment}", environment.Production), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op://ci-production/registry/url")
}

func TestFetchEmptyValue(t *testing.T) {
	store := developStore()
	store["op://ci-develop/registry/region"] = "  "

	_, err := Fetch(context.Background(), store, environment.Develop, Paths("op://ci-{environment}", environment.Develop), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissing))
}

func TestFetchMissingPath(t *testing.T) {
	paths := Paths("op://ci-{environment}", environment.Develop)
	delete(paths, KeyRegion)

	_, err := Fetch(context.Background(), developStore(), environment.Develop, paths, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no secret path configured for region")
}

func TestNewBundleRequiresEveryKey(t *testing.T) {
	_, err := NewBundle(environment.Staging, map[Key]string{KeyRegistryURL: "r"})
	require.ErrorIs(t, err, ErrMissing)
}
