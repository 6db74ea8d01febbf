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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigstore/playbook-integrity/pkg/command"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/logging"
	"github.com/sigstore/playbook-integrity/pkg/scm"
	"github.com/sigstore/playbook-integrity/pkg/utils"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func newTestEngine(opts Options) *Engine {
	if opts.SCM == "" {
		opts.SCM = scm.TypeFilesystem
	}
	if opts.Checker == "" {
		opts.Checker = CheckerNative
	}
	opts.Logger = logging.Discard()
	return NewEngine(opts)
}

func abTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha\n")
	writeFile(t, root, "b.txt", "bravo\n")
	return root
}

func TestDetectDriftReportsUncommittedDeletion(t *testing.T) {
	// HEAD still lists b.txt after it was deleted from the work tree
	runner := command.RunnerFunc(func(context.Context, command.Command) (command.Result, error) {
		return command.Result{Stdout: "a.txt\x00b.txt\x00"}, nil
	})
	root := abTree(t)
	e := newTestEngine(Options{SCM: scm.TypeGit, Runner: runner})
	_, err := e.Generate(context.Background(), root, "")
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "b.txt")))

	rep, err := e.DetectDrift(context.Background(), root)
	require.Error(t, err)
	assert.Equal(t, integrity.ErrTypeDrift, integrity.TypeOf(err))
	assert.Equal(t, []string{"b.txt"}, rep.RemovedFiles)
	assert.Nil(t, rep.AddedFiles)
}

func TestGenerate(t *testing.T) {
	root := abTree(t)
	e := newTestEngine(Options{})

	rep, err := e.Generate(context.Background(), root, "")
	require.NoError(t, err)
	assert.True(t, rep.Succeeded())

	want := fmt.Sprintf("%s  a.txt\n%s  b.txt\n",
		digest.FromString("alpha\n").Encoded(), digest.FromString("bravo\n").Encoded())
	assert.Equal(t, want, readFile(t, filepath.Join(root, FileName)))
}

func TestGenerateExcludesArtifacts(t *testing.T) {
	root := abTree(t)
	writeFile(t, root, FileName+".gpg", "sig")
	writeFile(t, root, FileName+".sig", "sig")
	writeFile(t, root, "notes/sha256sum.txt.bak", "kept")
	e := newTestEngine(Options{})

	_, err := e.Generate(context.Background(), root, "")
	require.NoError(t, err)
	// a second run must not pick up the manifest written by the first
	_, err = e.Generate(context.Background(), root, "")
	require.NoError(t, err)

	m, err := ParseFile(filepath.Join(root, FileName))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "notes/sha256sum.txt.bak"}, m.Paths())
}

func TestGenerateSkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := abTree(t)
	require.NoError(t, os.Symlink("a.txt", filepath.Join(root, "link.txt")))
	e := newTestEngine(Options{})

	_, err := e.Generate(context.Background(), root, "")
	require.NoError(t, err)
	m, err := ParseFile(filepath.Join(root, FileName))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, m.Paths())
}

func TestGenerateEmptyTree(t *testing.T) {
	root := t.TempDir()
	e := newTestEngine(Options{})

	_, err := e.Generate(context.Background(), root, "")
	require.NoError(t, err)
	assert.Empty(t, readFile(t, filepath.Join(root, FileName)))
}

func TestGenerateMissingTarget(t *testing.T) {
	e := newTestEngine(Options{})
	rep, err := e.Generate(context.Background(), filepath.Join(t.TempDir(), "nope"), "")
	assert.True(t, integrity.IsType(err, integrity.ErrTypeNotFound))
	assert.Equal(t, 1, rep.ReturnCode)
}

func TestGenerateParallelMatchesSequential(t *testing.T) {
	root := t.TempDir()
	for i := range 40 {
		writeFile(t, root, fmt.Sprintf("roles/r%02d/tasks/main.yml", i), fmt.Sprintf("- name: task %d\n", i))
	}
	seq := filepath.Join(t.TempDir(), "seq.txt")
	par := filepath.Join(t.TempDir(), "par.txt")

	_, err := newTestEngine(Options{}).Generate(context.Background(), root, seq)
	require.NoError(t, err)
	_, err = newTestEngine(Options{HashWorkers: 8}).Generate(context.Background(), root, par)
	require.NoError(t, err)
	assert.Equal(t, readFile(t, seq), readFile(t, par))
}

func TestGenerateBackendFailure(t *testing.T) {
	root := abTree(t)
	runner := command.RunnerFunc(func(context.Context, command.Command) (command.Result, error) {
		return command.Result{ReturnCode: 128, Stderr: "fatal: not a git repository\n"}, nil
	})
	e := newTestEngine(Options{SCM: scm.TypeGit, Runner: runner})

	rep, err := e.Generate(context.Background(), root, "")
	assert.True(t, integrity.IsType(err, integrity.ErrTypeBackend))
	assert.Equal(t, "fatal: not a git repository\n", rep.Stderr)
	_, statErr := os.Stat(filepath.Join(root, FileName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDetectDrift(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		root := abTree(t)
		e := newTestEngine(Options{})
		_, err := e.Generate(ctx, root, "")
		require.NoError(t, err)
		// content edits are not drift
		writeFile(t, root, "a.txt", "changed\n")

		rep, err := e.DetectDrift(ctx, root)
		require.NoError(t, err)
		assert.True(t, rep.Succeeded())
	})

	t.Run("removed", func(t *testing.T) {
		root := abTree(t)
		e := newTestEngine(Options{})
		_, err := e.Generate(ctx, root, "")
		require.NoError(t, err)
		require.NoError(t, os.Remove(filepath.Join(root, "b.txt")))

		rep, err := e.DetectDrift(ctx, root)
		var drift *integrity.DriftError
		require.True(t, errors.As(err, &drift))
		assert.Equal(t, []string{"b.txt"}, drift.RemovedFiles)
		assert.Empty(t, drift.AddedFiles)
		assert.Equal(t, []string{"b.txt"}, rep.RemovedFiles)
		assert.Equal(t, 1, rep.ReturnCode)
		assert.Contains(t, rep.Stderr, "-b.txt")
		assert.Equal(t, integrity.ErrTypeDrift, integrity.TypeOf(err))

		// both encodings agree on the empty side
		repJSON, err := json.Marshal(rep)
		require.NoError(t, err)
		driftJSON, err := json.Marshal(drift)
		require.NoError(t, err)
		var fromReport, fromDrift map[string]any
		require.NoError(t, json.Unmarshal(repJSON, &fromReport))
		require.NoError(t, json.Unmarshal(driftJSON, &fromDrift))
		assert.Contains(t, fromReport, "added_files")
		assert.Nil(t, fromReport["added_files"])
		assert.Equal(t, fromDrift["added_files"], fromReport["added_files"])
		assert.Equal(t, fromDrift["removed_files"], fromReport["removed_files"])
	})

	t.Run("added and renamed", func(t *testing.T) {
		root := abTree(t)
		e := newTestEngine(Options{})
		_, err := e.Generate(ctx, root, "")
		require.NoError(t, err)
		require.NoError(t, os.Rename(filepath.Join(root, "a.txt"), filepath.Join(root, "c.txt")))
		writeFile(t, root, "d.txt", "delta\n")

		rep, err := e.DetectDrift(ctx, root)
		var drift *integrity.DriftError
		require.True(t, errors.As(err, &drift))
		assert.Equal(t, []string{"c.txt", "d.txt"}, drift.AddedFiles)
		assert.Equal(t, []string{"a.txt"}, drift.RemovedFiles)
		assert.Equal(t, drift.AddedFiles, rep.AddedFiles)
	})

	t.Run("persisted manifest untouched", func(t *testing.T) {
		root := abTree(t)
		e := newTestEngine(Options{})
		_, err := e.Generate(ctx, root, "")
		require.NoError(t, err)
		before := readFile(t, filepath.Join(root, FileName))
		writeFile(t, root, "new.txt", "x")

		_, err = e.DetectDrift(ctx, root)
		require.Error(t, err)
		assert.Equal(t, before, readFile(t, filepath.Join(root, FileName)))
	})

	t.Run("shared scratch", func(t *testing.T) {
		root := abTree(t)
		scratch, err := utils.NewScratchDir("test")
		require.NoError(t, err)
		defer scratch.Remove()
		e := newTestEngine(Options{Scratch: scratch})
		_, err = e.Generate(ctx, root, "")
		require.NoError(t, err)

		_, err = e.DetectDrift(ctx, root)
		require.NoError(t, err)
		_, err = os.Stat(scratch.Join(FileName))
		assert.NoError(t, err)
	})

	t.Run("missing manifest", func(t *testing.T) {
		root := abTree(t)
		_, err := newTestEngine(Options{}).DetectDrift(ctx, root)
		assert.True(t, integrity.IsType(err, integrity.ErrTypeNotFound))
	})
}

func TestVerifyDigestsNative(t *testing.T) {
	ctx := context.Background()

	t.Run("intact", func(t *testing.T) {
		root := abTree(t)
		e := newTestEngine(Options{})
		_, err := e.Generate(ctx, root, "")
		require.NoError(t, err)

		rep, err := e.VerifyDigests(ctx, root)
		require.NoError(t, err)
		assert.Empty(t, rep.Stderr)
		assert.Equal(t, "a.txt: OK\nb.txt: OK\n", rep.Stdout)
	})

	t.Run("tampered", func(t *testing.T) {
		root := abTree(t)
		e := newTestEngine(Options{})
		_, err := e.Generate(ctx, root, "")
		require.NoError(t, err)
		writeFile(t, root, "a.txt", "tampered\n")

		rep, err := e.VerifyDigests(ctx, root)
		require.Error(t, err)
		assert.True(t, integrity.IsType(err, integrity.ErrTypeDigestMismatch))
		assert.Equal(t, "a.txt: FAILED\nsha256sum: WARNING: 1 computed checksum did NOT match\n", rep.Stderr)
		assert.Equal(t, rep.Stderr, integrity.DetailOf(err))
		assert.Equal(t, 1, rep.ReturnCode)
	})

	t.Run("missing file", func(t *testing.T) {
		root := abTree(t)
		e := newTestEngine(Options{})
		_, err := e.Generate(ctx, root, "")
		require.NoError(t, err)
		require.NoError(t, os.Remove(filepath.Join(root, "b.txt")))

		rep, err := e.VerifyDigests(ctx, root)
		require.Error(t, err)
		assert.Equal(t, "b.txt: FAILED open or read\n"+
			"sha256sum: b.txt: No such file or directory\n"+
			"sha256sum: WARNING: 1 listed file could not be read\n", rep.Stderr)
	})

	t.Run("missing manifest", func(t *testing.T) {
		_, err := newTestEngine(Options{}).VerifyDigests(ctx, abTree(t))
		assert.True(t, integrity.IsType(err, integrity.ErrTypeNotFound))
	})
}

func TestVerifyDigestsTool(t *testing.T) {
	ctx := context.Background()
	root := abTree(t)
	writeFile(t, root, FileName, "irrelevant\n")

	var got command.Command
	fake := func(res command.Result) command.Runner {
		return command.RunnerFunc(func(_ context.Context, c command.Command) (command.Result, error) {
			got = c
			return res, nil
		})
	}

	t.Run("argv", func(t *testing.T) {
		e := newTestEngine(Options{Checker: CheckerTool, Runner: fake(command.Result{Stdout: "a.txt: OK\n"})})
		_, err := e.VerifyDigests(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, []string{"sha256sum", "--check", FileName}, got.Argv())
		assert.Equal(t, root, got.Dir)
	})

	t.Run("warning with zero exit fails", func(t *testing.T) {
		e := newTestEngine(Options{Checker: CheckerTool, Runner: fake(command.Result{
			Stdout: "a.txt: OK\n",
			Stderr: "sha256sum: WARNING: 1 line is improperly formatted\n",
		})})
		rep, err := e.VerifyDigests(ctx, root)
		require.Error(t, err)
		assert.Equal(t, "sha256sum: WARNING: 1 line is improperly formatted\n", rep.Stderr)
		assert.Equal(t, 1, rep.ReturnCode)
	})

	t.Run("stdout before stderr", func(t *testing.T) {
		e := newTestEngine(Options{Checker: CheckerTool, Runner: fake(command.Result{
			ReturnCode: 1,
			Stdout:     "a.txt: OK\nb.txt: FAILED\n",
			Stderr:     "sha256sum: WARNING: 1 computed checksum did NOT match\n",
		})})
		rep, err := e.VerifyDigests(ctx, root)
		require.Error(t, err)
		assert.Equal(t, "b.txt: FAILED\nsha256sum: WARNING: 1 computed checksum did NOT match\n", rep.Stderr)
	})
}
