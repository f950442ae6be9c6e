package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/sethvargo/go-githubactions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2/google/externalaccount"
)

const (
	testIssuer   = "https://token.actions.githubusercontent.com"
	testProvider = "projects/123/locations/global/workloadIdentityPools/github/providers/acme"
)

func TestAudience(t *testing.T) {
	want := "//iam.googleapis.com/" + testProvider
	assert.Equal(t, want, Audience(testProvider))
	assert.Equal(t, want, Audience("//iam.googleapis.com/"+testProvider))
	assert.Equal(t, want, Audience("https://iam.googleapis.com/"+testProvider))
	assert.Equal(t, "https://iam.googleapis.com/"+testProvider, TokenAudience(want))
}

func TestImpersonationURL(t *testing.T) {
	assert.Equal(t,
		"https://iamcredentials.googleapis.com/v1/projects/-/serviceAccounts/ci@acme.iam.gserviceaccount.com:generateAccessToken",
		ImpersonationURL(" ci@acme.iam.gserviceaccount.com "))
}

func TestActionsTokenSupplier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer request-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"value": "jwt-for-" + r.URL.Query().Get("audience")})
	}))
	t.Cleanup(server.Close)

	env := map[string]string{
		"ACTIONS_ID_TOKEN_REQUEST_URL":   server.URL + "/token?api-version=2.0",
		"ACTIONS_ID_TOKEN_REQUEST_TOKEN": "request-token",
	}
	action := githubactions.New(
		githubactions.WithWriter(io.Discard),
		githubactions.WithGetenv(func(key string) string { return env[key] }),
	)

	supplier := &ActionsTokenSupplier{Source: action}
	token, err := supplier.SubjectToken(context.Background(), externalaccount.SupplierOptions{Audience: Audience(testProvider)})
	require.NoError(t, err)
	assert.Equal(t, "jwt-for-https://iam.googleapis.com/"+testProvider, token)

	env["ACTIONS_ID_TOKEN_REQUEST_TOKEN"] = "wrong"
	_, err = supplier.SubjectToken(context.Background(), externalaccount.SupplierOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id-token: write")

	delete(env, "ACTIONS_ID_TOKEN_REQUEST_URL")
	_, err = supplier.SubjectToken(context.Background(), externalaccount.SupplierOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACTIONS_ID_TOKEN_REQUEST_URL")
}

type idTokenFunc func(ctx context.Context, audience string) (string, error)

func (f idTokenFunc) GetIDToken(ctx context.Context, audience string) (string, error) {
	return f(ctx, audience)
}

func TestActionsTokenSupplierRejectsEmptyToken(t *testing.T) {
	supplier := &ActionsTokenSupplier{Source: idTokenFunc(func(context.Context, string) (string, error) {
		return "", nil
	})}
	_, err := supplier.SubjectToken(context.Background(), externalaccount.SupplierOptions{})
	require.EqualError(t, err, "identity token response is empty")

	_, err = (&ActionsTokenSupplier{}).SubjectToken(context.Background(), externalaccount.SupplierOptions{})
	require.Error(t, err)
}

type staticSupplier string

func (s staticSupplier) SubjectToken(context.Context, externalaccount.SupplierOptions) (string, error) {
	return string(s), nil
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims map[string]any) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	object, err := signer.Sign(payload)
	require.NoError(t, err)
	raw, err := object.CompactSerialize()
	require.NoError(t, err)
	return raw
}

func TestVerifyingSupplier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	verifier := oidc.NewVerifier(testIssuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{SkipClientIDCheck: true})

	audience := "https://iam.googleapis.com/" + testProvider
	good := signToken(t, key, map[string]any{
		"iss":        testIssuer,
		"aud":        audience,
		"sub":        "repo:acme/api:ref:refs/heads/main",
		"repository": "acme/api",
		"ref":        "refs/heads/main",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	claims, err := VerifyToken(context.Background(), verifier, good, audience)
	require.NoError(t, err)
	assert.Equal(t, Claims{Subject: "repo:acme/api:ref:refs/heads/main", Repository: "acme/api", Ref: "refs/heads/main"}, claims)

	supplier := &verifyingSupplier{next: staticSupplier(good), verifier: verifier}
	raw, err := supplier.SubjectToken(context.Background(), externalaccount.SupplierOptions{Audience: Audience(testProvider)})
	require.NoError(t, err)
	assert.Equal(t, good, raw)

	_, err = supplier.SubjectToken(context.Background(), externalaccount.SupplierOptions{Audience: Audience("projects/other")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audience")

	wrongIssuer := signToken(t, key, map[string]any{
		"iss": "https://evil.example.com",
		"aud": audience,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err = VerifyToken(context.Background(), verifier, wrongIssuer, audience)
	require.Error(t, err)
}

func TestTokenSourceValidation(t *testing.T) {
	_, err := NewFederator(context.Background(), Config{}, nil)
	require.Error(t, err)

	f, err := NewFederator(context.Background(), Config{TokenURL: "https://sts.googleapis.com/v1/token"}, staticSupplier("jwt"))
	require.NoError(t, err)

	_, err = f.TokenSource(context.Background(), "", "ci@acme.iam.gserviceaccount.com")
	require.Error(t, err)
	_, err = f.TokenSource(context.Background(), testProvider, "")
	require.Error(t, err)
}
