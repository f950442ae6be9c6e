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
	"fmt"
	"os"
	"strings"

	"github.com/1password/onepassword-sdk-go"
)

// TokenEnv holds the 1Password service account token.
const TokenEnv = "OP_SERVICE_ACCOUNT_TOKEN"

// OnePasswordStore resolves op:// references with a 1Password service account.
type OnePasswordStore struct {
	op *onepassword.Client
}

var _ Store = (*OnePasswordStore)(nil)

// NewOnePasswordStore authenticates with the token from TokenEnv or tokenFile.
// Authentication happens here, so an invalid token fails before any secret
// is requested.
func NewOnePasswordStore(ctx context.Context, tokenFile, version string) (*OnePasswordStore, error) {
	token, err := serviceAccountToken(tokenFile)
	if err != nil {
		return nil, err
	}

	client, err := onepassword.NewClient(ctx,
		onepassword.WithServiceAccountToken(token),
		onepassword.WithIntegrationInfo("image-pipeline", version),
	)
	if err != nil {
		return nil, fmt.Errorf("authenticating to 1Password: %w", err)
	}

	return &OnePasswordStore{op: client}, nil
}

func (s *OnePasswordStore) Resolve(ctx context.Context, reference string) (string, error) {
	return s.op.Secrets().Resolve(ctx, reference)
}

func serviceAccountToken(tokenFile string) (string, error) {
	if token := os.Getenv(TokenEnv); token != "" {
		return strings.TrimSpace(token), nil
	}

	if tokenFile != "" {
		data, err := os.ReadFile(tokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	return "", fmt.Errorf("no token provided: set %s or secrets.token_file", TokenEnv)
}
