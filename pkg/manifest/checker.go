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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/sigstore/playbook-integrity/pkg/command"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/utils"
)

// okMarker identifies passing lines in a checksum report.
const okMarker = ": OK"

// CheckerKind selects a digest checker.
type CheckerKind string

const (
	// CheckerAuto uses the checksum tool when it is installed and the
	// native checker otherwise.
	CheckerAuto CheckerKind = "auto"
	// CheckerTool runs `sha256sum --check`.
	CheckerTool CheckerKind = "tool"
	// CheckerNative checks digests in process.
	CheckerNative CheckerKind = "native"
)

// ParseCheckerKind maps a flag value to a CheckerKind.
func ParseCheckerKind(s string) (CheckerKind, error) {
	switch k := CheckerKind(strings.TrimSpace(s)); k {
	case "", CheckerAuto:
		return CheckerAuto, nil
	case CheckerTool, CheckerNative:
		return k, nil
	default:
		return "", integrity.Configuration("checker must be one of auto, tool, native; got %q", s)
	}
}

// Checker runs a batch digest check of manifestName inside dir and returns
// the checksum report: one "<path>: OK" or failure line per entry on stdout,
// diagnostics on stderr.
type Checker interface {
	Check(ctx context.Context, dir, manifestName string) (command.Result, error)
}

// ToolChecker runs the system checksum tool.
type ToolChecker struct {
	Runner command.Runner
}

// Check runs `sha256sum --check <manifestName>` in dir.
func (c ToolChecker) Check(ctx context.Context, dir, manifestName string) (command.Result, error) {
	return c.Runner.Run(ctx, command.Command{
		Name: "sha256sum",
		Args: []string{"--check", manifestName},
		Dir:  dir,
	})
}

// NativeChecker verifies digests in process and writes a report in the same
// format as `sha256sum --check`.
type NativeChecker struct{}

// Check verifies every entry of the manifest.
func (NativeChecker) Check(ctx context.Context, dir, manifestName string) (command.Result, error) {
	m, err := ParseFile(filepath.Join(dir, manifestName))
	if err != nil {
		return command.Result{}, err
	}

	var stdout, stderr strings.Builder
	unreadable, mismatched := 0, 0
	for _, e := range m.Entries() {
		if err := ctx.Err(); err != nil {
			return command.Result{}, err
		}
		name := e.Path
		if strings.ContainsAny(name, "\\\n\r") {
			name = "\\" + escaper.Replace(name)
		}
		actual, err := hashFile(dir, e.Path)
		switch {
		case err != nil:
			unreadable++
			fmt.Fprintf(&stderr, "sha256sum: %s: %s\n", name, openErrorText(err))
			fmt.Fprintf(&stdout, "%s: FAILED open or read\n", name)
		case actual != e.Digest:
			mismatched++
			fmt.Fprintf(&stdout, "%s: FAILED\n", name)
		default:
			fmt.Fprintf(&stdout, "%s%s\n", name, okMarker)
		}
	}
	if unreadable > 0 {
		fmt.Fprintf(&stderr, "sha256sum: WARNING: %d listed %s could not be read\n", unreadable, plural(unreadable, "file", "files"))
	}
	if mismatched > 0 {
		fmt.Fprintf(&stderr, "sha256sum: WARNING: %d computed %s did NOT match\n", mismatched, plural(mismatched, "checksum", "checksums"))
	}

	res := command.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if unreadable+mismatched > 0 {
		res.ReturnCode = 1
	}
	return res, nil
}

func openErrorText(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "No such file or directory"
	case errors.Is(err, fs.ErrPermission):
		return "Permission denied"
	default:
		var pe *fs.PathError
		if errors.As(err, &pe) {
			return pe.Err.Error()
		}
		return err.Error()
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func (e *Engine) digestChecker() Checker {
	switch e.checker {
	case CheckerNative:
		return NativeChecker{}
	case CheckerTool:
		return ToolChecker{Runner: e.runner}
	default:
		if _, err := exec.LookPath("sha256sum"); err == nil {
			return ToolChecker{Runner: e.runner}
		}
		e.logger.Debug("sha256sum not found, checking digests natively")
		return NativeChecker{}
	}
}

// FilterReport drops passing lines from a checksum report and returns the
// remaining lines, each newline-terminated.
func FilterReport(report string) string {
	var b strings.Builder
	for _, line := range strings.Split(report, "\n") {
		if line == "" || strings.Contains(line, okMarker) {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// VerifyDigests checks every recorded digest of root's manifest against the
// current file content. The report's Stderr holds the failing report lines
// followed by the checker's diagnostics; it is empty on success.
//
// Run DetectDrift first: a removed file fails here too, but drift names it
// more precisely.
func (e *Engine) VerifyDigests(ctx context.Context, root string) (Report, error) {
	if err := utils.ValidateFolderExists("target directory", root); err != nil {
		return failedReport(err), err
	}
	if _, err := os.Stat(filepath.Join(root, FileName)); err != nil {
		nf := integrity.NotFound(filepath.Join(root, FileName), "manifest does not exist")
		return failedReport(nf), nf
	}

	res, err := e.digestChecker().Check(ctx, root, FileName)
	if err != nil {
		return Report{Result: res}, err
	}
	detail := FilterReport(res.Stdout) + FilterReport(res.Stderr)
	rep := Report{Result: command.Result{ReturnCode: res.ReturnCode, Stdout: res.Stdout, Stderr: detail}}
	if res.Succeeded() && detail == "" {
		return rep, nil
	}
	if rep.ReturnCode == 0 {
		rep.ReturnCode = 1
	}
	e.logger.Warn("digest check failed in %s", root)
	return rep, &integrity.Error{
		Type:    integrity.ErrTypeDigestMismatch,
		Path:    root,
		Message: "recorded digests do not match file content",
		Detail:  detail,
	}
}

// Digest computes the manifest digest of a single file under root.
func Digest(root, rel string) (digest.Digest, error) {
	return hashFile(root, rel)
}
