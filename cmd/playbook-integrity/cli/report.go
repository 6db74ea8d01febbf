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


package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/sigstore/playbook-integrity/cmd/playbook-integrity/cli/options"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/manifest"
)

// Report is the outcome printed by every command. Text output shows Detail;
// JSON output places Result under "detail" so the per-stage results, drift
// sets included, reach machine consumers.
type Report struct {
	Changed bool
	Failed  bool
	Stage   string
	Detail  string
	// Result is the structured outcome, such as a signing.Result or
	// verify.Result. When nil, JSON output carries a failure with Detail.
	Result any
}

// failure is the JSON detail of a command that stopped before a pipeline ran.
type failure struct {
	Failed bool   `json:"failed"`
	Detail string `json:"detail,omitempty"`
}

// manifestResult is the JSON detail of a single manifest stage.
type manifestResult struct {
	Failed       bool             `json:"failed"`
	Detail       string           `json:"detail,omitempty"`
	DigestResult *manifest.Report `json:"digest_result,omitempty"`
}

type jsonReport struct {
	Changed bool   `json:"changed"`
	Failed  bool   `json:"failed"`
	Stage   string `json:"stage,omitempty"`
	Detail  any    `json:"detail"`
}

// Write renders r to w as canonical JSON or as text.
func (r Report) Write(w io.Writer, format string) error {
	switch format {
	case options.ReportJSON:
		detail := r.Result
		if detail == nil {
			detail = failure{Failed: r.Failed, Detail: r.Detail}
		}
		raw, err := json.Marshal(jsonReport{Changed: r.Changed, Failed: r.Failed, Stage: r.Stage, Detail: detail})
		if err != nil {
			return err
		}
		canonical, err := jcs.Transform(raw)
		if err != nil {
			return fmt.Errorf("canonicalizing report: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", canonical)
		return err
	default:
		status := "ok"
		if r.Failed {
			status = "failed"
			if r.Stage != "" {
				status += " at " + r.Stage
			}
		}
		if _, err := fmt.Fprintf(w, "%s (changed: %t)\n", status, r.Changed); err != nil {
			return err
		}
		if r.Detail == "" {
			return nil
		}
		detail := r.Detail
		if !strings.HasSuffix(detail, "\n") {
			detail += "\n"
		}
		_, err := io.WriteString(w, detail)
		return err
	}
}

// Exit codes.
const (
	ExitFailed        = 1
	ExitConfiguration = 2
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func (e *exitError) ExitCode() int { return e.code }

// exitCodeFor maps a failure to an exit code. Problems with the supplied
// parameters are distinguished from runtime failures.
func exitCodeFor(err error) int {
	switch integrity.TypeOf(err) {
	case integrity.ErrTypeConfiguration, integrity.ErrTypeNotSupported:
		return ExitConfiguration
	default:
		return ExitFailed
	}
}

// reject reports a failure that happened before anything was executed.
func reject(w io.Writer, format string, err error) error {
	rep := Report{Failed: true, Detail: err.Error() + "\n"}
	if werr := rep.Write(w, format); werr != nil {
		return werr
	}
	return &exitError{code: exitCodeFor(err), err: err}
}

// withTimeout applies the root --timeout to ctx.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ro.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ro.Timeout)
}
