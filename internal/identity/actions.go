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

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2/google/externalaccount"
)

// IDTokenSource mints an OIDC token for an audience. *githubactions.Action
// satisfies it.
type IDTokenSource interface {
	GetIDToken(ctx context.Context, audience string) (string, error)
}

// ActionsTokenSupplier hands the job's GitHub Actions OIDC token to the STS
// exchange.
type ActionsTokenSupplier struct {
	Source IDTokenSource
}

var _ externalaccount.SubjectTokenSupplier = (*ActionsTokenSupplier)(nil)

// TokenAudience converts an STS audience (//iam.googleapis.com/...) into the
// audience requested from the CI host (https://iam.googleapis.com/...).
func TokenAudience(stsAudience string) string {
	if strings.HasPrefix(stsAudience, "//") {
		return "https:" + stsAudience
	}
	return stsAudience
}

func (s *ActionsTokenSupplier) SubjectToken(ctx context.Context, options externalaccount.SupplierOptions) (string, error) {
	if s.Source == nil {
		return "", errors.New("no identity token source configured")
	}
	token, err := s.Source.GetIDToken(ctx, TokenAudience(options.Audience))
	if err != nil {
		return "", fmt.Errorf("requesting identity token (does the job have id-token: write?): %w", err)
	}
	if token == "" {
		return "", errors.New("identity token response is empty")
	}
	return token, nil
}
