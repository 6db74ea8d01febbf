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

// Package verify checks a signed playbook: its file set, the recorded
// digests and the manifest's signature, in that order.
package verify

import (
	"context"

	"github.com/sigstore/playbook-integrity/pkg/command"
	"github.com/sigstore/playbook-integrity/pkg/config"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/logging"
	"github.com/sigstore/playbook-integrity/pkg/manifest"
	"github.com/sigstore/playbook-integrity/pkg/scm"
	"github.com/sigstore/playbook-integrity/pkg/signature"
	"github.com/sigstore/playbook-integrity/pkg/tracing"
	"github.com/sigstore/playbook-integrity/pkg/utils"
)

// Stage names the pipeline step a result stopped at.
type Stage string

const (
	StageDrift  Stage = "drift"
	StageDigest Stage = "digest"
	StageVerify Stage = "verify"
)

// Result aggregates the stages of one verification run. DigestResult holds
// the report of the last manifest stage that ran, so a drift failure
// surfaces its added and removed files there. A stage that did not run has
// a nil result.
type Result struct {
	Failed       bool             `json:"failed"`
	Stage        Stage            `json:"stage,omitempty"`
	Detail       string           `json:"detail,omitempty"`
	DigestResult *manifest.Report `json:"digest_result,omitempty"`
	VerifyResult *command.Result  `json:"verify_result,omitempty"`
}

func (r *Result) fail(stage Stage, stderr string, err error) {
	r.Failed = true
	r.Stage = stage
	switch {
	case stderr != "":
		r.Detail = stderr
	case integrity.DetailOf(err) != "":
		r.Detail = integrity.DetailOf(err)
	default:
		r.Detail = err.Error() + "\n"
	}
}

// Options carries the collaborators of a Verifier.
type Options struct {
	Runner      command.Runner
	Logger      logging.Logger
	SCM         scm.Type
	Checker     manifest.CheckerKind
	HashWorkers int
	Toolchain   *signature.Toolchain
}

// Verifier checks one target against its signed manifest.
type Verifier struct {
	target string
	cfg    config.SchemeConfig
	opts   Options
	runner command.Runner
	logger logging.Logger
}

// NewVerifier validates cfg for verification and returns a Verifier for
// target. Nothing is executed until Verify is called.
func NewVerifier(target string, cfg config.SchemeConfig, opts Options) (*Verifier, error) {
	if err := cfg.Validate(config.OperationVerify); err != nil {
		return nil, err
	}
	if err := utils.ValidateFolderExists("target directory", target); err != nil {
		return nil, err
	}
	// fail on an unknown scheme now rather than after hashing the tree
	if _, err := signature.FileName(cfg.Scheme, manifest.FileName); err != nil {
		return nil, err
	}
	runner := opts.Runner
	if runner == nil {
		runner = command.NewExecRunner(opts.Logger)
	}
	return &Verifier{
		target: target,
		cfg:    cfg,
		opts:   opts,
		runner: runner,
		logger: logging.ForComponent(opts.Logger, "verify"),
	}, nil
}

// Verify runs drift detection, digest verification and signature
// verification, stopping at the first failure.
func (v *Verifier) Verify(ctx context.Context) (Result, error) {
	var res Result
	scratch, err := utils.NewScratchDir("verify")
	if err != nil {
		res.fail(StageDrift, "", err)
		return res, err
	}
	defer scratch.Remove()

	engine := manifest.NewEngine(manifest.Options{
		Runner:      v.runner,
		Logger:      v.opts.Logger,
		SCM:         v.opts.SCM,
		Checker:     v.opts.Checker,
		HashWorkers: v.opts.HashWorkers,
		Scratch:     scratch,
	})
	backend, err := signature.New(v.cfg, signature.Options{
		Runner:    v.runner,
		Logger:    v.opts.Logger,
		Scratch:   scratch,
		Toolchain: v.opts.Toolchain,
	})
	if err != nil {
		res.fail(StageVerify, "", err)
		return res, err
	}

	attrs := map[string]interface{}{
		"target": v.target,
		"scheme": string(v.cfg.Scheme),
	}

	err = tracing.Run(ctx, "DetectDrift", attrs, func(ctx context.Context) error {
		rep, err := engine.DetectDrift(ctx, v.target)
		res.DigestResult = &rep
		return err
	})
	if err != nil {
		res.fail(StageDrift, res.DigestResult.Stderr, err)
		v.logger.Warn("drift check failed for %s: %v", v.target, err)
		return res, err
	}

	err = tracing.Run(ctx, "VerifyDigests", attrs, func(ctx context.Context) error {
		rep, err := engine.VerifyDigests(ctx, v.target)
		res.DigestResult = &rep
		return err
	})
	if err != nil {
		res.fail(StageDigest, res.DigestResult.Stderr, err)
		v.logger.Warn("digest check failed for %s: %v", v.target, err)
		return res, err
	}

	err = tracing.Run(ctx, "VerifySignature", attrs, func(ctx context.Context) error {
		out, err := backend.Verify(ctx, v.target, manifest.FileName, backend.SignatureFile(manifest.FileName))
		res.VerifyResult = &out
		return err
	})
	if err != nil {
		res.fail(StageVerify, res.VerifyResult.Stderr, err)
		v.logger.Warn("signature check failed for %s: %v", v.target, err)
		return res, err
	}

	v.logger.Info("verified %s (%s)", v.target, v.cfg.Scheme)
	return res, nil
}
