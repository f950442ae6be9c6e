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

package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docker/image-pipeline/pkg/environment"
)

// Key names one entry of the bundle.
type Key string

// The statically known set of secrets every run needs.
const (
	KeyRegistryURL         Key = "registry_url"
	KeyRegion              Key = "region"
	KeyIdentityProvider    Key = "identity_provider"
	KeyServiceAccount      Key = "service_account"
	KeyScannerClientID     Key = "scanner_client_id"
	KeyScannerClientSecret Key = "scanner_client_secret"
)

// ErrMissing is returned when a store resolves a reference to an empty value.
var ErrMissing = errors.New("secret is empty")

// keyPaths maps each key to its path below the environment prefix.
var keyPaths = []struct {
	key  Key
	path string
}{
	{KeyRegistryURL, "registry/url"},
	{KeyRegion, "registry/region"},
	{KeyIdentityProvider, "identity/provider"},
	{KeyServiceAccount, "identity/service-account"},
	{KeyScannerClientID, "scanner/client-id"},
	{KeyScannerClientSecret, "scanner/client-secret"},
}

// Keys returns every bundle key in fetch order.
func Keys() []Key {
	keys := make([]Key, 0, len(keyPaths))
	for _, kp := range keyPaths {
		keys = append(keys, kp.key)
	}
	return keys
}

// Store resolves a secret reference such as op://vault/item/field.
type Store interface {
	Resolve(ctx context.Context, reference string) (string, error)
}

// Masker hides values from the run log.
type Masker interface {
	AddMask(value string)
}

// Paths expands prefix (containing {environment}) into one reference per key.
func Paths(prefix string, env environment.Environment) map[Key]string {
	base := strings.TrimRight(strings.ReplaceAll(prefix, "{environment}", string(env)), "/")
	paths := make(map[Key]string, len(keyPaths))
	for _, kp := range keyPaths {
		paths[kp.key] = base + "/" + kp.path
	}
	return paths
}

// Bundle is the environment scoped set of secrets. It is filled once by
// Fetch and only read afterwards.
type Bundle struct {
	env    environment.Environment
	values map[Key]string
}

// Environment is the environment the bundle was fetched for.
func (b *Bundle) Environment() environment.Environment {
	return b.env
}

// Get returns the value stored under key.
func (b *Bundle) Get(key Key) string {
	return b.values[key]
}

func (b *Bundle) RegistryURL() string         { return b.values[KeyRegistryURL] }
func (b *Bundle) Region() string              { return b.values[KeyRegion] }
func (b *Bundle) IdentityProvider() string    { return b.values[KeyIdentityProvider] }
func (b *Bundle) ServiceAccount() string      { return b.values[KeyServiceAccount] }
func (b *Bundle) ScannerClientID() string     { return b.values[KeyScannerClientID] }
func (b *Bundle) ScannerClientSecret() string { return b.values[KeyScannerClientSecret] }

// RegistryHost is the host part of the registry URL, used for docker login.
func (b *Bundle) RegistryHost() string {
	registry := strings.TrimPrefix(strings.TrimPrefix(b.RegistryURL(), "https://"), "http://")
	host, _, _ := strings.Cut(registry, "/")
	return host
}

// NewBundle builds a bundle from already resolved values. Missing keys are
// reported as an error.
func NewBundle(env environment.Environment, values map[Key]string) (*Bundle, error) {
	copied := make(map[Key]string, len(keyPaths))
	for _, key := range Keys() {
		value := strings.TrimSpace(values[key])
		if value == "" {
			return nil, fmt.Errorf("%s: %w", key, ErrMissing)
		}
		copied[key] = value
	}
	return &Bundle{env: env, values: copied}, nil
}

// Fetch resolves every path for env from store. The first failing key stops
// the fetch. Every value is masked before it is returned.
func Fetch(ctx context.Context, store Store, env environment.Environment, paths map[Key]string, masker Masker) (*Bundle, error) {
	values := make(map[Key]string, len(paths))
	for _, key := range Keys() {
		reference, ok := paths[key]
		if !ok {
			return nil, fmt.Errorf("no secret path configured for %s", key)
		}

		value, err := store.Resolve(ctx, reference)
		if err != nil {
			return nil, fmt.Errorf("resolving %s (%s): %w", key, reference, err)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return nil, fmt.Errorf("resolving %s (%s): %w", key, reference, ErrMissing)
		}
		if masker != nil {
			masker.AddMask(value)
		}
		values[key] = value
	}
	return NewBundle(env, values)
}
