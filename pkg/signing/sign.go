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

// Package signing generates a playbook's manifest and signs it.
package signing

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
	StageDigest Stage = "digest"
	StageSign   Stage = "sign"
)

// Result aggregates the stages of one signing run. A stage that did not run
// has a nil result.
type Result struct {
	Failed bool  `json:"failed"`
	Stage  Stage `json:"stage,omitempty"`
	// Detail is the failing stage's diagnostic text.
	Detail       string           `json:"detail,omitempty"`
	DigestResult *manifest.Report `json:"digest_result,omitempty"`
	SignResult   *command.Result  `json:"sign_result,omitempty"`
}

func (r *Result) fail(stage Stage, stderr string, err error) {
	r.Failed = true
	r.Stage = stage
	r.Detail = failureDetail(stderr, err)
}

func failureDetail(stderr string, err error) string {
	if stderr != "" {
		return stderr
	}
	if d := integrity.DetailOf(err); d != "" {
		return d
	}
	if err != nil {
		return err.Error() + "\n"
	}
	return ""
}

// Options carries the collaborators of a Signer.
type Options struct {
	Runner      command.Runner
	Logger      logging.Logger
	SCM         scm.Type
	HashWorkers int
	Toolchain   *signature.Toolchain
	Tokens      signature.TokenSource
}

// Signer generates the manifest of one target and signs it.
type Signer struct {
	target  string
	scheme  config.Scheme
	engine  *manifest.Engine
	backend signature.Backend
	logger  logging.Logger
}

// NewSigner validates cfg for signing and returns a Signer for target.
// Nothing is executed until Sign is called.
func NewSigner(target string, cfg config.SchemeConfig, opts Options) (*Signer, error) {
	if err := cfg.Validate(config.OperationSign); err != nil {
		return nil, err
	}
	if err := utils.ValidateFolderExists("target directory", target); err != nil {
		return nil, err
	}
	runner := opts.Runner
	if runner == nil {
		runner = command.NewExecRunner(opts.Logger)
	}
	backend, err := signature.New(cfg, signature.Options{
		Runner:    runner,
		Logger:    opts.Logger,
		Toolchain: opts.Toolchain,
		Tokens:    opts.Tokens,
	})
	if err != nil {
		return nil, err
	}
	return &Signer{
		target: target,
		scheme: cfg.Scheme,
		engine: manifest.NewEngine(manifest.Options{
			Runner:      runner,
			Logger:      opts.Logger,
			SCM:         opts.SCM,
			HashWorkers: opts.HashWorkers,
		}),
		backend: backend,
		logger:  logging.ForComponent(opts.Logger, "signing"),
	}, nil
}

// Sign regenerates the manifest and replaces its signature. The run stops
// at the first failing stage; the returned error classifies the failure
// and the Result carries what each stage that ran reported.
func (s *Signer) Sign(ctx context.Context) (Result, error) {
	var res Result
	attrs := map[string]interface{}{
		"target": s.target,
		"scheme": string(s.scheme),
	}

	err := tracing.Run(ctx, "GenerateManifest", attrs, func(ctx context.Context) error {
		rep, err := s.engine.Generate(ctx, s.target, "")
		res.DigestResult = &rep
		return err
	})
	if err != nil {
		res.fail(StageDigest, res.DigestResult.Stderr, err)
		s.logger.Error("generating manifest for %s: %v", s.target, err)
		return res, err
	}

	err = tracing.Run(ctx, "SignManifest", attrs, func(ctx context.Context) error {
		out, err := s.backend.Sign(ctx, s.target, manifest.FileName)
		res.SignResult = &out
		return err
	})
	if err != nil {
		res.fail(StageSign, res.SignResult.Stderr, err)
		s.logger.Error("signing %s: %v", s.target, err)
		return res, err
	}

	s.logger.Info("signed %s (%s)", s.target, s.scheme)
	return res, nil
}
