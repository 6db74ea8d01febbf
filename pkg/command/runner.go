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

// Package command runs external tools (git, sha256sum, gpg, cosign) as
// argument vectors and captures their output.
//
// Commands are never passed through a shell. A non-zero exit status is not
// an error at this layer: callers inspect Result.ReturnCode and decide how
// to classify the failure. Errors are returned only when the process could
// not be started or when it was stopped by a deadline.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/logging"
	"github.com/sigstore/playbook-integrity/pkg/utils"
)

// Command describes a single process invocation.
type Command struct {
	// Name is the program to run, resolved through PATH when it has no
	// path separator.
	Name string
	// Args are passed to the program verbatim.
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env is overlaid on the parent environment.
	Env map[string]string
	// Timeout bounds the run. Zero uses the runner's default.
	Timeout time.Duration
}

// Argv returns the full argument vector.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// sensitiveFlags take a secret as their next argument.
var sensitiveFlags = map[string]bool{
	"--identity-token": true,
}

// String renders the argument vector for logs with secrets masked.
func (c Command) String() string {
	argv := c.Argv()
	out := make([]string, len(argv))
	for i, a := range argv {
		if i > 0 && sensitiveFlags[argv[i-1]] {
			out[i] = utils.MaskToken(a)
			continue
		}
		out[i] = a
	}
	return strings.Join(out, " ")
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	ReturnCode int    `json:"returncode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
}

// Succeeded reports whether the command exited with status zero.
func (r Result) Succeeded() bool {
	return r.ReturnCode == 0
}

// Output returns stdout followed by stderr.
func (r Result) Output() string {
	return r.Stdout + r.Stderr
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// RunnerFunc adapts an ordinary function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) (Result, error)

// Run calls f(ctx, cmd).
func (f RunnerFunc) Run(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}

// DefaultTimeout bounds commands that set no timeout of their own.
const DefaultTimeout = 5 * time.Minute

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	// Timeout applies to commands without their own timeout. Zero means
	// DefaultTimeout; a negative value disables the bound.
	Timeout time.Duration
	Logger  logging.Logger
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner returns an ExecRunner using the given logger.
func NewExecRunner(logger logging.Logger) *ExecRunner {
	return &ExecRunner{Logger: logging.EnsureLogger(logger)}
}

// Run starts cmd, waits for it and returns its captured output.
//
// If the deadline expires the process group is killed and a Timeout error is
// returned along with whatever output was captured.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	if c.Name == "" {
		return Result{}, integrity.Configuration("command name is empty")
	}
	logger := logging.EnsureLogger(r.Logger)

	timeout := c.Timeout
	if timeout == 0 {
		timeout = r.Timeout
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = overlayEnv(os.Environ(), c.Env)
	}
	configureProcessGroup(cmd)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("running %s (dir=%s)", c.String(), c.Dir)
	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil && runCtx.Err() != nil {
		res.ReturnCode = -1
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return res, integrity.New(integrity.ErrTypeTimeout,
				fmt.Sprintf("%s did not finish within %s", c.Name, timeout), runCtx.Err())
		}
		return res, fmt.Errorf("running %s: %w", c.Name, runCtx.Err())
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, integrity.New(integrity.ErrTypeBackend,
				fmt.Sprintf("starting %s", c.Name), err)
		}
		res.ReturnCode = exitErr.ExitCode()
	}
	logger.Debug("%s exited with %d after %s", c.Name, res.ReturnCode, time.Since(start).Round(time.Millisecond))
	return res, nil
}

// overlayEnv returns base with the entries of overlay replacing or appending
// variables. Overlay keys are applied in sorted order.
func overlayEnv(base []string, overlay map[string]string) []string {
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, replaced := overlay[name]; replaced {
			continue
		}
		env = append(env, kv)
	}
	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}
	return env
}
