package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"golang.org/x/oauth2"

	"github.com/docker/image-pipeline/internal/config"
	"github.com/docker/image-pipeline/internal/notify"
	"github.com/docker/image-pipeline/pkg/image"
	"github.com/docker/image-pipeline/pkg/scanner"
	"github.com/docker/image-pipeline/pkg/secrets"
)

const (
	commit = "4f2c9a1e0b7d3c5a9e8f6d4b2a0c1e3f5a7b9d8c"
	digest = "sha256:6c3c624b58dbbcd3c0dd82b4c53f04194d1247c6eebdaab7c610cf7d66709b3b"
	token  = "ya29.federated-access-token"
)

type fakeActions struct {
	masks    []string
	errors   []string
	warnings []string
	groups   []string
	outputs  map[string]string
}

func (a *fakeActions) AddMask(p string) { a.masks = append(a.masks, p) }

func (a *fakeActions) Errorf(msg string, args ...any) {
	a.errors = append(a.errors, fmt.Sprintf(msg, args...))
}

func (a *fakeActions) Warningf(msg string, args ...any) {
	a.warnings = append(a.warnings, fmt.Sprintf(msg, args...))
}

func (a *fakeActions) Group(title string) { a.groups = append(a.groups, title) }
func (a *fakeActions) EndGroup()          {}

func (a *fakeActions) SetOutput(k, v string) {
	if a.outputs == nil {
		a.outputs = map[string]string{}
	}
	a.outputs[k] = v
}

type fakeTree struct {
	head       string
	checkedOut string
	err        error
}

func (f *fakeTree) Root() string { return "." }

func (f *fakeTree) HeadSHA() (string, error) { return f.head, f.err }

func (f *fakeTree) Checkout(sha string) error {
	if f.err != nil {
		return f.err
	}
	f.checkedOut = sha
	return nil
}

type mapStore map[string]string

func (m mapStore) Resolve(_ context.Context, reference string) (string, error) {
	value, ok := m[reference]
	if !ok {
		return "", fmt.Errorf("%s not found", reference)
	}
	return value, nil
}

func storeFor(env string) mapStore {
	prefix := "op://ci-" + env + "/"
	return mapStore{
		prefix + "registry/url":             "europe-docker.pkg.dev/acme-" + env + "/images",
		prefix + "registry/region":          "europe-west1",
		prefix + "identity/provider":        "projects/123/locations/global/workloadIdentityPools/gh/providers/gh",
		prefix + "identity/service-account": "ci@acme-" + env + ".iam.gserviceaccount.com",
		prefix + "scanner/client-id":        "scanner-id",
		prefix + "scanner/client-secret":    "scanner-secret",
	}
}

type fakeIssuer struct {
	provider       string
	serviceAccount string
	err            error
}

func (f *fakeIssuer) Token(_ context.Context, provider, serviceAccount string) (*oauth2.Token, error) {
	f.provider, f.serviceAccount = provider, serviceAccount
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

type fakeBuilder struct {
	loginHost  string
	loginToken string
	requests   []image.BuildRequest
	loginErr   error
	buildErr   error
}

func (f *fakeBuilder) Login(_ context.Context, host, accessToken string) error {
	f.loginHost, f.loginToken = host, accessToken
	return f.loginErr
}

func (f *fakeBuilder) BuildAndPush(_ context.Context, req image.BuildRequest) (image.BuildResult, error) {
	f.requests = append(f.requests, req)
	if f.buildErr != nil {
		return image.BuildResult{}, f.buildErr
	}
	return image.BuildResult{Digest: digest, Metadata: map[string]any{"containerimage.digest": digest}}, nil
}

type fakeVerifier struct {
	digest string
	err    error
}

func (f *fakeVerifier) Verify(_ context.Context, tags []name.Tag, _ authn.Authenticator) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if len(tags) == 0 {
		return "", errors.New("no tags")
	}
	return f.digest, nil
}

type fakeScanner struct {
	creds   scanner.Credentials
	targets []scanner.Target
	err     error
}

func (f *fakeScanner) Download(context.Context, string) error { return nil }

func (f *fakeScanner) Authenticate(_ context.Context, creds scanner.Credentials) error {
	f.creds = creds
	return nil
}

func (f *fakeScanner) Scan(_ context.Context, target scanner.Target) error {
	f.targets = append(f.targets, target)
	return f.err
}

type memoryPutter struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryPutter) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return nil
}

type recordingNotifier struct {
	events []notify.ImagePushed
}

func (r *recordingNotifier) Notify(_ context.Context, event notify.ImagePushed) error {
	r.events = append(r.events, event)
	return nil
}

type fixture struct {
	actions  *fakeActions
	tree     *fakeTree
	store    mapStore
	storeErr error
	issuer   *fakeIssuer
	builder  *fakeBuilder
	verifier *fakeVerifier
	scanner  *fakeScanner
}

func newFixture(env string) *fixture {
	return &fixture{
		actions:  &fakeActions{},
		tree:     &fakeTree{head: commit},
		store:    storeFor(env),
		issuer:   &fakeIssuer{},
		builder:  &fakeBuilder{},
		verifier: &fakeVerifier{digest: digest},
		scanner:  &fakeScanner{},
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Config: config.Config{
			Image: config.Image{
				Name:       "app",
				Version:    "1.4.0",
				Platform:   "linux/amd64",
				Context:    ".",
				Dockerfile: "Dockerfile",
				Source:     "https://github.com/acme/app",
			},
			Secrets: config.Secrets{Backend: "env", Prefix: "op://ci-{environment}"},
		},
		Actions:    f.actions,
		OpenSource: func(string) (SourceTree, error) { return f.tree, nil },
		SecretStore: func(context.Context) (secrets.Store, error) {
			if f.storeErr != nil {
				return nil, f.storeErr
			}
			return f.store, nil
		},
		Identity: func(context.Context) (TokenIssuer, error) { return f.issuer, nil },
		Builder:  f.builder,
		Verifier: f.verifier,
		Scanner:  f.scanner,
		WorkDir:  "/tmp/pipeline",
	}
}
