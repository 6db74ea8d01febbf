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

package scm

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/logging"
)

// ignoredDirs are version control metadata directories never walked.
var ignoredDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
}

// FilesystemResolver walks a directory that is not under version control.
// Files are emitted in lexical order.
type FilesystemResolver struct {
	logger  logging.Logger
	exclude map[string]bool
}

var _ Resolver = (*FilesystemResolver)(nil)

// NewFilesystemResolver returns a Resolver that walks the tree on disk.
func NewFilesystemResolver(opts Options) *FilesystemResolver {
	return &FilesystemResolver{
		logger:  logging.ForComponent(opts.Logger, "scm.filesystem"),
		exclude: opts.excluded(),
	}
}

// Resolve lists every regular file under root.
func (r *FilesystemResolver) Resolve(ctx context.Context, root string) (FileSet, error) {
	var files FileSet
	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		// DirEntry types come from Lstat, so symlinks are never regular.
		if !d.Type().IsRegular() {
			if d.Type()&fs.ModeSymlink != 0 {
				r.logger.Debug("skipping symlink %s", path)
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if r.exclude[rel] {
			return nil
		}
		files = append(files, rel)
		return nil
	}

	if err := filepath.WalkDir(root, walkFn); err != nil {
		return nil, integrity.NewWithPath(integrity.ErrTypeIO, root, "walking directory", err)
	}
	r.logger.Debug("resolved %d files", len(files))
	return files, nil
}
