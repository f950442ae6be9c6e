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

// Package identity exchanges the CI host's OIDC token for short lived cloud
// credentials through workload identity federation.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google/externalaccount"
)

const (
	jwtTokenType = "urn:ietf:params:oauth:token-type:jwt"

	iamAudiencePrefix      = "//iam.googleapis.com/"
	impersonationURLFormat = "https://iamcredentials.googleapis.com/v1/projects/-/serviceAccounts/%s:generateAccessToken"
)

// Config mirrors the identity section of pipeline.yaml.
type Config struct {
	TokenURL     string
	Scopes       []string
	VerifyIssuer bool
	Issuer       string
}

// Federator turns a subject token into an access token for a service account.
type Federator struct {
	cfg      Config
	supplier externalaccount.SubjectTokenSupplier
	verifier *oidc.IDTokenVerifier
}

// Option customizes a Federator.
type Option func(*Federator)

// WithVerifier checks every subject token with verifier before the exchange.
func WithVerifier(verifier *oidc.IDTokenVerifier) Option {
	return func(f *Federator) {
		f.verifier = verifier
	}
}

// NewFederator returns a federator that reads subject tokens from supplier.
// When cfg.VerifyIssuer is set and no verifier option is given, the issuer's
// discovery document is fetched to build one.
func NewFederator(ctx context.Context, cfg Config, supplier externalaccount.SubjectTokenSupplier, opts ...Option) (*Federator, error) {
	if supplier == nil {
		return nil, errors.New("subject token supplier is required")
	}
	f := &Federator{cfg: cfg, supplier: supplier}
	for _, opt := range opts {
		opt(f)
	}

	if cfg.VerifyIssuer && f.verifier == nil {
		provider, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("oidc provider: %w", err)
		}
		// The audience depends on the workload identity provider, which is
		// only known per run, so it is checked in SubjectToken instead.
		f.verifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	}
	return f, nil
}

// Audience is the STS audience for a workload identity provider resource name.
func Audience(provider string) string {
	provider = strings.TrimSpace(provider)
	return iamAudiencePrefix + strings.TrimPrefix(strings.TrimPrefix(provider, "https:"), iamAudiencePrefix)
}

// ImpersonationURL is the generateAccessToken endpoint for serviceAccount.
func ImpersonationURL(serviceAccount string) string {
	return fmt.Sprintf(impersonationURLFormat, strings.TrimSpace(serviceAccount))
}

// TokenSource returns an access token source for serviceAccount, federated
// through the given workload identity provider.
func (f *Federator) TokenSource(ctx context.Context, provider, serviceAccount string) (oauth2.TokenSource, error) {
	if strings.TrimSpace(provider) == "" {
		return nil, errors.New("workload identity provider is required")
	}
	if strings.TrimSpace(serviceAccount) == "" {
		return nil, errors.New("service account is required")
	}

	conf := externalaccount.Config{
		Audience:                       Audience(provider),
		SubjectTokenType:               jwtTokenType,
		TokenURL:                       f.cfg.TokenURL,
		Scopes:                         f.cfg.Scopes,
		ServiceAccountImpersonationURL: ImpersonationURL(serviceAccount),
		SubjectTokenSupplier:           &verifyingSupplier{next: f.supplier, verifier: f.verifier},
	}
	ts, err := externalaccount.NewTokenSource(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("configuring workload identity federation: %w", err)
	}
	return ts, nil
}

// Token performs the exchange and returns the access token.
func (f *Federator) Token(ctx context.Context, provider, serviceAccount string) (*oauth2.Token, error) {
	ts, err := f.TokenSource(ctx, provider, serviceAccount)
	if err != nil {
		return nil, err
	}
	token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("exchanging identity token for %s: %w", serviceAccount, err)
	}
	return token, nil
}

// verifyingSupplier checks the issuer and audience of subject tokens.
type verifyingSupplier struct {
	next     externalaccount.SubjectTokenSupplier
	verifier *oidc.IDTokenVerifier
}

func (s *verifyingSupplier) SubjectToken(ctx context.Context, options externalaccount.SupplierOptions) (string, error) {
	raw, err := s.next.SubjectToken(ctx, options)
	if err != nil {
		return "", err
	}
	if s.verifier == nil {
		return raw, nil
	}

	if _, err := VerifyToken(ctx, s.verifier, raw, TokenAudience(options.Audience)); err != nil {
		return "", err
	}
	return raw, nil
}

// Claims is the subset of CI token claims that gets logged.
type Claims struct {
	Subject    string `json:"sub"`
	Repository string `json:"repository"`
	Ref        string `json:"ref"`
}

// VerifyToken checks signature, issuer and expiry, then requires audience to
// be one of the token's audiences.
func VerifyToken(ctx context.Context, verifier *oidc.IDTokenVerifier, raw, audience string) (Claims, error) {
	token, err := verifier.Verify(ctx, raw)
	if err != nil {
		return Claims{}, fmt.Errorf("verifying identity token: %w", err)
	}

	found := false
	for _, aud := range token.Audience {
		if aud == audience {
			found = true
			break
		}
	}
	if !found {
		return Claims{}, fmt.Errorf("identity token audience %v does not include %s", token.Audience, audience)
	}

	var claims Claims
	if err := token.Claims(&claims); err != nil {
		return Claims{}, fmt.Errorf("decoding identity token claims: %w", err)
	}
	return claims, nil
}
