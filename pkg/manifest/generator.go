// Copyright 2025 The Sigstore Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/sigstore/playbook-integrity/pkg/command"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/logging"
	"github.com/sigstore/playbook-integrity/pkg/scm"
	"github.com/sigstore/playbook-integrity/pkg/utils"
)

// Report is the outcome of a manifest stage. For drift failures the added
// and removed paths are set; an empty side is nil and encodes as null.
type Report struct {
	command.Result
	AddedFiles   []string `json:"added_files"`
	RemovedFiles []string `json:"removed_files"`
}

func failedReport(err error) Report {
	return Report{Result: command.Result{ReturnCode: 1, Stderr: err.Error() + "\n"}}
}

// Options configures an Engine.
type Options struct {
	Runner command.Runner
	Logger logging.Logger
	// SCM forces a file-set backend. Empty selects one with scm.Detect.
	SCM scm.Type
	// Checker selects how recorded digests are verified.
	Checker CheckerKind
	// HashWorkers bounds concurrent file hashing. Values below 2 hash
	// sequentially. Output is identical either way.
	HashWorkers int
	// Scratch holds drift-detection output. When nil each DetectDrift call
	// creates and removes its own scratch directory.
	Scratch *utils.ScratchDir
}

// Engine generates and checks manifests.
type Engine struct {
	runner  command.Runner
	logger  logging.Logger
	scmType scm.Type
	checker CheckerKind
	workers int
	scratch *utils.ScratchDir
}

// NewEngine returns an Engine.
func NewEngine(opts Options) *Engine {
	logger := logging.ForComponent(opts.Logger, "manifest")
	runner := opts.Runner
	if runner == nil {
		runner = command.NewExecRunner(opts.Logger)
	}
	return &Engine{
		runner:  runner,
		logger:  logger,
		scmType: opts.SCM,
		checker: opts.Checker,
		workers: opts.HashWorkers,
		scratch: opts.Scratch,
	}
}

func (e *Engine) resolver(root string) (scm.Resolver, error) {
	t := e.scmType
	if t == "" {
		t = scm.Detect(root)
	}
	e.logger.Debug("using %s file-set backend for %s", t, root)
	return scm.New(t, scm.Options{Runner: e.runner, Logger: e.logger, Exclude: ArtifactNames})
}

// Build resolves the tracked files under root and hashes each of them.
func (e *Engine) Build(ctx context.Context, root string) (*Manifest, error) {
	resolver, err := e.resolver(root)
	if err != nil {
		return nil, err
	}
	files, err := resolver.Resolve(ctx, root)
	if err != nil {
		return nil, err
	}
	entries, err := e.hashFiles(ctx, root, files)
	if err != nil {
		return nil, err
	}
	return New(entries), nil
}

// Generate writes the manifest of root to outputPath, replacing any existing
// file. An empty outputPath means <root>/sha256sum.txt.
func (e *Engine) Generate(ctx context.Context, root, outputPath string) (Report, error) {
	if err := utils.ValidateFolderExists("target directory", root); err != nil {
		return failedReport(err), err
	}
	if outputPath == "" {
		outputPath = filepath.Join(root, FileName)
	}
	m, err := e.Build(ctx, root)
	if err != nil {
		rep := failedReport(err)
		if d := integrity.DetailOf(err); d != "" {
			rep.Stderr = d
		}
		return rep, err
	}
	if err := m.WriteFile(outputPath); err != nil {
		return failedReport(err), err
	}
	e.logger.Debug("wrote %d entries to %s", m.Len(), outputPath)
	return Report{}, nil
}

func (e *Engine) hashFiles(ctx context.Context, root string, files scm.FileSet) ([]Entry, error) {
	entries := make([]Entry, len(files))
	if e.workers < 2 {
		for i, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			d, err := hashFile(root, f)
			if err != nil {
				return nil, err
			}
			entries[i] = Entry{Path: f, Digest: d}
		}
		return entries, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := hashFile(root, f)
			if err != nil {
				return err
			}
			entries[i] = Entry{Path: f, Digest: d}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// hashFile returns the SHA-256 digest of root/rel.
func hashFile(root, rel string) (digest.Digest, error) {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return "", integrity.NewWithPath(integrity.ErrTypeIO, rel, "opening file", err)
	}
	defer f.Close()
	d, err := digest.SHA256.FromReader(f)
	if err != nil {
		return "", integrity.NewWithPath(integrity.ErrTypeIO, rel, fmt.Sprintf("hashing %s", rel), err)
	}
	return d, nil
}
