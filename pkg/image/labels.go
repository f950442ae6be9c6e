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
	"sort"
	"time"

	"github.com/docker/image-pipeline/pkg/environment"
)

// OCI annotation keys used as image labels.
const (
	LabelTitle       = "org.opencontainers.image.title"
	LabelSource      = "org.opencontainers.image.source"
	LabelRevision    = "org.opencontainers.image.revision"
	LabelVersion     = "org.opencontainers.image.version"
	LabelCreated     = "org.opencontainers.image.created"
	LabelEnvironment = "com.docker.image-pipeline.environment"
	LabelRunID       = "com.docker.image-pipeline.run-id"
)

// Metadata feeds the label set.
type Metadata struct {
	Title       string
	Source      string
	Commit      string
	Version     string
	Environment environment.Environment
	RunID       string
	Created     time.Time
}

// Labels returns the labels attached to the built image. Empty values are
// left out.
func Labels(meta Metadata) map[string]string {
	labels := map[string]string{}
	set := func(key, value string) {
		if value != "" {
			labels[key] = value
		}
	}
	set(LabelTitle, meta.Title)
	set(LabelSource, meta.Source)
	set(LabelRevision, meta.Commit)
	set(LabelVersion, meta.Version)
	set(LabelEnvironment, string(meta.Environment))
	set(LabelRunID, meta.RunID)
	if !meta.Created.IsZero() {
		labels[LabelCreated] = meta.Created.UTC().Format(time.RFC3339)
	}
	return labels
}

// sortedKeys keeps generated command lines stable.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
