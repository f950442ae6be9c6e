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

// Package artifacts archives build metadata and run records in an
// S3-compatible bucket.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config is the connection to the bucket.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Putter stores one object. *Store implements it; tests use a map.
type Putter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Store writes objects to a single bucket.
type Store struct {
	client *minio.Client
	bucket string
}

func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("artifacts endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("artifacts bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("uploading %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Prefix is the object key prefix for one run.
func Prefix(environment, commit, runID string) string {
	return path.Join(environment, commit, runID)
}

// Record summarizes a run for the archive.
type Record struct {
	RunID       string            `json:"run_id"`
	Environment string            `json:"environment"`
	Pipeline    string            `json:"pipeline"`
	Commit      string            `json:"commit"`
	Images      []string          `json:"images"`
	Digest      string            `json:"digest,omitempty"`
	Steps       map[string]string `json:"steps"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Archive uploads the run record and, when present, the build metadata.
func Archive(ctx context.Context, putter Putter, record Record, buildMetadata map[string]any) error {
	prefix := Prefix(record.Environment, record.Commit, record.RunID)

	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	if err := putter.Put(ctx, path.Join(prefix, "run.json"), payload, "application/json"); err != nil {
		return err
	}

	if len(buildMetadata) == 0 {
		return nil
	}
	payload, err = json.MarshalIndent(buildMetadata, "", "  ")
	if err != nil {
		return err
	}
	return putter.Put(ctx, path.Join(prefix, "build-metadata.json"), payload, "application/json")
}
