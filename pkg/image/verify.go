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

package image

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// Verifier checks that pushed tags exist in the registry.
type Verifier struct {
	transport http.RoundTripper
}

// NewVerifier uses transport for registry calls; nil means the default.
func NewVerifier(transport http.RoundTripper) *Verifier {
	if transport == nil {
		transport = remote.DefaultTransport
	}
	return &Verifier{transport: transport}
}

// TokenAuth authenticates registry calls with an OAuth2 access token.
func TokenAuth(token string) authn.Authenticator {
	return authn.FromConfig(authn.AuthConfig{Username: TokenUsername, Password: token})
}

// Verify resolves every tag and returns the shared digest. Tags pointing at
// different digests are an error: they were pushed by a single build.
func (v *Verifier) Verify(ctx context.Context, tags []name.Tag, auth authn.Authenticator) (string, error) {
	if auth == nil {
		auth = authn.Anonymous
	}

	var digest string
	for _, tag := range tags {
		desc, err := remote.Head(tag,
			remote.WithAuth(auth),
			remote.WithContext(ctx),
			remote.WithTransport(v.transport),
		)
		if err != nil {
			return "", fmt.Errorf("cannot resolve %s: %w", tag, err)
		}

		current := desc.Digest.String()
		if digest == "" {
			digest = current
			continue
		}
		if current != digest {
			return "", fmt.Errorf("tag %s points to %s, expected %s", tag, current, digest)
		}
	}
	return digest, nil
}
