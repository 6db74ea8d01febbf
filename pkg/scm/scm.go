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

// Package scm enumerates the files that belong to a playbook tree.
//
// A Resolver returns relative, slash-separated paths in the order its
// backend emits them. That order becomes the line order of the manifest.
// Symbolic links and the excluded names (the manifest and its signatures)
// never appear in a FileSet.
//
// Backends register themselves by Type. Detect picks a Type from the tree's
// metadata; callers then obtain a Resolver with New.
package scm

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sigstore/playbook-integrity/pkg/command"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/logging"
)

// Type names a file-set backend.
type Type string

const (
	// TypeGit lists the files tracked at HEAD of a git work tree.
	TypeGit Type = "git"
	// TypeFilesystem walks the directory on disk.
	TypeFilesystem Type = "filesystem"
)

// FileSet is an ordered list of relative, slash-separated file paths.
type FileSet []string

// Resolver enumerates the tracked files under root.
type Resolver interface {
	Resolve(ctx context.Context, root string) (FileSet, error)
}

// Options configures a backend.
type Options struct {
	// Runner executes SCM commands. Defaults to a command.ExecRunner.
	Runner command.Runner
	Logger logging.Logger
	// Exclude lists root-relative paths dropped from every FileSet by exact
	// match.
	Exclude []string
}

func (o Options) runner() command.Runner {
	if o.Runner != nil {
		return o.Runner
	}
	return command.NewExecRunner(o.Logger)
}

func (o Options) excluded() map[string]bool {
	m := make(map[string]bool, len(o.Exclude))
	for _, e := range o.Exclude {
		m[filepath.ToSlash(e)] = true
	}
	return m
}

// Factory builds a Resolver for one backend.
type Factory func(Options) Resolver

var (
	registryMu sync.RWMutex
	registry   = map[Type]Factory{}
)

// Register makes a backend available under t. Registering a Type twice
// replaces the earlier factory.
func Register(t Type, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = f
}

// Types returns the registered backend types in sorted order.
func Types() []Type {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New returns the Resolver registered for t.
func New(t Type, opts Options) (Resolver, error) {
	registryMu.RLock()
	f, ok := registry[t]
	registryMu.RUnlock()
	if !ok {
		return nil, integrity.NotSupported("this SCM type is not supported: %q", t)
	}
	return f(opts), nil
}

// Detect chooses a backend type from the metadata found in root. A tree
// with a .git entry (directory, or file for linked work trees) is git;
// anything else is walked on disk.
func Detect(root string) Type {
	if _, err := os.Lstat(filepath.Join(root, ".git")); err == nil {
		return TypeGit
	}
	return TypeFilesystem
}

func init() {
	Register(TypeGit, func(o Options) Resolver { return NewGitResolver(o) })
	Register(TypeFilesystem, func(o Options) Resolver { return NewFilesystemResolver(o) })
}
