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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sigstore/playbook-integrity/pkg/command"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/logging"
)

// GitResolver lists the files recorded in the HEAD tree of a git work tree.
type GitResolver struct {
	runner  command.Runner
	logger  logging.Logger
	exclude map[string]bool
}

var _ Resolver = (*GitResolver)(nil)

// NewGitResolver returns a git backed Resolver.
func NewGitResolver(opts Options) *GitResolver {
	return &GitResolver{
		runner:  opts.runner(),
		logger:  logging.ForComponent(opts.Logger, "scm.git"),
		exclude: opts.excluded(),
	}
}

// Resolve runs `git ls-tree -r HEAD --name-only -z` in root. Paths are
// reported relative to root, so root may be a subdirectory of a repository.
// Submodule entries and symlinks are skipped, and so are paths deleted from
// the work tree but not yet committed: drift detection then reports them as
// removed.
func (g *GitResolver) Resolve(ctx context.Context, root string) (FileSet, error) {
	res, err := g.runner.Run(ctx, command.Command{
		Name: "git",
		Args: []string{"ls-tree", "-r", "HEAD", "--name-only", "-z"},
		Dir:  root,
	})
	if err != nil {
		return nil, err
	}
	if !res.Succeeded() {
		return nil, &integrity.Error{
			Type:    integrity.ErrTypeBackend,
			Path:    root,
			Message: fmt.Sprintf("git ls-tree exited with status %d", res.ReturnCode),
			Detail:  res.Stderr,
		}
	}

	var files FileSet
	for _, name := range strings.Split(res.Stdout, "\x00") {
		if name == "" || g.exclude[name] {
			continue
		}
		info, err := os.Lstat(filepath.Join(root, filepath.FromSlash(name)))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			g.logger.Debug("skipping %s: deleted from the work tree", name)
			continue
		case err != nil:
			// kept, so hashing reports the error
		case info.Mode()&fs.ModeSymlink != 0:
			g.logger.Debug("skipping symlink %s", name)
			continue
		case info.IsDir():
			g.logger.Debug("skipping submodule %s", name)
			continue
		}
		files = append(files, name)
	}
	g.logger.Debug("resolved %d tracked files", len(files))
	return files, nil
}
