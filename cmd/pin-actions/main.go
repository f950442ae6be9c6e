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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/docker/image-pipeline/pkg/github"
	"github.com/docker/image-pipeline/pkg/workflows"
)

// main pins every action reference in the given workflow file or directory
// to the commit its tag points at.
func main() {
	dryRun := flag.Bool("dry-run", false, "Print the changes without writing them")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: pin-actions <workflow-file-or-directory> [--dry-run]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Arg(0), *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string, dryRun bool) error {
	files, err := workflows.Files(path)
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Println("Dry run: no files will be modified.")
	}

	pinner := workflows.NewPinner(github.New())
	total := 0
	for _, file := range files {
		result, err := pinner.PinFile(ctx, file, dryRun)
		if err != nil {
			return err
		}

		for _, change := range result.Changes {
			switch change.Kind {
			case workflows.ChangePinned:
				fmt.Printf("%s:%d: pinned %s@%s to %s\n", file, change.Line, change.Action, change.Version, change.SHA)
			case workflows.ChangeAnnotated:
				fmt.Printf("%s:%d: annotated %s@%s with %s\n", file, change.Line, change.Action, change.SHA, change.Version)
			}
		}
		for _, skipped := range result.Unresolved {
			if skipped.Err != nil {
				fmt.Fprintf(os.Stderr, "%s:%d: skipping %s@%s: %v\n", file, skipped.Line, skipped.Action, skipped.Ref, skipped.Err)
			} else {
				fmt.Fprintf(os.Stderr, "%s:%d: no tag found for %s@%s\n", file, skipped.Line, skipped.Action, skipped.Ref)
			}
		}

		switch {
		case len(result.Changes) == 0:
			fmt.Printf("No changes needed for %s.\n", file)
		case dryRun:
			fmt.Printf("Would update %s (%d actions).\n", file, len(result.Changes))
		default:
			fmt.Printf("Updated %s (%d actions).\n", file, len(result.Changes))
		}
		total += len(result.Changes)
	}

	fmt.Println("Total actions pinned:", total)
	return nil
}
