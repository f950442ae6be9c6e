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

// Package config loads pipeline.yaml and PIPELINE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "pipeline.yaml"

// EnvPrefix namespaces environment overrides, e.g. PIPELINE_IMAGE_NAME.
const EnvPrefix = "PIPELINE"

type Config struct {
	Image     Image     `mapstructure:"image"`
	Secrets   Secrets   `mapstructure:"secrets"`
	Identity  Identity  `mapstructure:"identity"`
	Scanner   Scanner   `mapstructure:"scanner"`
	Artifacts Artifacts `mapstructure:"artifacts"`
	Notify    Notify    `mapstructure:"notify"`
	Log       Log       `mapstructure:"log"`
}

// Image describes what gets built and how it is tagged.
type Image struct {
	Name       string `mapstructure:"name"`
	Version    string `mapstructure:"version"`
	Platform   string `mapstructure:"platform"`
	Context    string `mapstructure:"context"`
	Dockerfile string `mapstructure:"dockerfile"`
	Source     string `mapstructure:"source"`
}

// Secrets selects the secret store and the reference namespace.
type Secrets struct {
	// Backend is onepassword or env.
	Backend string `mapstructure:"backend"`
	// Prefix is expanded with {environment}, e.g. op://ci-{environment}.
	Prefix string `mapstructure:"prefix"`
	// TokenFile is read when OP_SERVICE_ACCOUNT_TOKEN is unset.
	TokenFile string `mapstructure:"token_file"`
}

// Identity configures workload identity federation.
type Identity struct {
	TokenURL     string   `mapstructure:"token_url"`
	Scopes       []string `mapstructure:"scopes"`
	VerifyIssuer bool     `mapstructure:"verify_issuer"`
	Issuer       string   `mapstructure:"issuer"`
}

type Scanner struct {
	DownloadURL string   `mapstructure:"download_url"`
	Binary      string   `mapstructure:"binary"`
	AuthArgs    []string `mapstructure:"auth_args"`
	ScanArgs    []string `mapstructure:"scan_args"`
}

// Artifacts is optional; archiving is disabled while Endpoint is empty.
type Artifacts struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether run artifacts should be uploaded.
func (a Artifacts) Enabled() bool {
	return strings.TrimSpace(a.Endpoint) != ""
}

// Notify is optional; notifications are disabled while NatsURL is empty.
type Notify struct {
	NatsURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

func (n Notify) Enabled() bool {
	return strings.TrimSpace(n.NatsURL) != ""
}

type Log struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// SetDefaults registers every key so that env overrides apply even when the
// file omits them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("image.name", "")
	v.SetDefault("image.version", "latest")
	v.SetDefault("image.platform", "linux/amd64")
	v.SetDefault("image.context", ".")
	v.SetDefault("image.dockerfile", "Dockerfile")
	v.SetDefault("image.source", "")

	v.SetDefault("secrets.backend", "onepassword")
	v.SetDefault("secrets.prefix", "op://ci-{environment}")
	v.SetDefault("secrets.token_file", "")

	v.SetDefault("identity.token_url", "https://sts.googleapis.com/v1/token")
	v.SetDefault("identity.scopes", []string{"https://www.googleapis.com/auth/cloud-platform"})
	v.SetDefault("identity.verify_issuer", false)
	v.SetDefault("identity.issuer", "https://token.actions.githubusercontent.com")

	v.SetDefault("scanner.download_url", "")
	v.SetDefault("scanner.binary", "scanner")
	v.SetDefault("scanner.auth_args", []string{"auth", "--id", "{client_id}", "--secret", "{client_secret}"})
	v.SetDefault("scanner.scan_args", []string{"docker", "scan", "--image", "{image}", "--dockerfile", "{manifest}", "--tag", "{tag}"})

	v.SetDefault("artifacts.endpoint", "")
	v.SetDefault("artifacts.bucket", "pipeline-runs")
	v.SetDefault("artifacts.access_key", "")
	v.SetDefault("artifacts.secret_key", "")
	v.SetDefault("artifacts.region", "us-east-1")
	v.SetDefault("artifacts.use_ssl", true)

	v.SetDefault("notify.nats_url", "")
	v.SetDefault("notify.subject", "image-pipeline.pushed")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the config file at path. An empty path looks for pipeline.yaml
// in the working directory and falls back to defaults when it is missing.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFile, ".yaml"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}
	return decode(v)
}

// Read parses YAML config from r. Used by tests and for piped configs.
func Read(r io.Reader) (Config, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields every pipeline run depends on.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Image.Name) == "" {
		return errors.New("image.name is required")
	}
	if strings.ContainsAny(c.Image.Name, ":@ ") {
		return fmt.Errorf("image.name %q must not contain a tag, digest or spaces", c.Image.Name)
	}
	if strings.Count(c.Image.Platform, "/") < 1 {
		return fmt.Errorf("image.platform %q must look like os/arch", c.Image.Platform)
	}
	switch c.Secrets.Backend {
	case "onepassword", "env":
	default:
		return fmt.Errorf("secrets.backend %q is not supported (onepassword, env)", c.Secrets.Backend)
	}
	if !strings.Contains(c.Secrets.Prefix, "{environment}") {
		return fmt.Errorf("secrets.prefix %q must contain {environment}", c.Secrets.Prefix)
	}
	if c.Artifacts.Enabled() && strings.TrimSpace(c.Artifacts.Bucket) == "" {
		return errors.New("artifacts.bucket is required when artifacts.endpoint is set")
	}
	if c.Artifacts.Enabled() && strings.Contains(c.Artifacts.Endpoint, "://") {
		return errors.New("artifacts.endpoint must be host[:port] without a scheme")
	}
	return nil
}
