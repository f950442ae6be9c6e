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

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docker/image-pipeline/internal/config"
	"github.com/docker/image-pipeline/internal/source"
	"github.com/docker/image-pipeline/pkg/environment"
	"github.com/docker/image-pipeline/pkg/secrets"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check pipeline.yaml and the repository before a run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		return validate(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	validateCmd.Flags().StringVar(&flagConfig, "config", "", "Path to pipeline.yaml.")
	rootCmd.AddCommand(validateCmd)
}

func validate(out io.Writer, cfg config.Config) error {
	fmt.Fprintln(out, "✅ Configuration is valid")

	dockerfile := filepath.Join(cfg.Image.Context, cfg.Image.Dockerfile)
	if _, err := os.Stat(dockerfile); err != nil {
		return fmt.Errorf("dockerfile: %w", err)
	}
	fmt.Fprintln(out, "✅ Dockerfile found at", dockerfile)

	repo, err := source.Open(cfg.Image.Context)
	if err != nil {
		return err
	}
	head, err := repo.HeadSHA()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Repository at %s is on %s\n", repo.Root(), head)

	for _, env := range environment.All() {
		paths := secrets.Paths(cfg.Secrets.Prefix, env)
		if cfg.Secrets.Backend == "env" {
			for _, key := range secrets.Keys() {
				fmt.Fprintf(out, "   %s: %s\n", env, secrets.EnvName(paths[key]))
			}
			continue
		}
		fmt.Fprintf(out, "   %s: %s\n", env, paths[secrets.KeyRegistryURL])
	}
	fmt.Fprintln(out, "✅ Secret references expand for every environment")
	return nil
}
