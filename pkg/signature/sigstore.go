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

package signature

import (
	"context"

	"github.com/sigstore/playbook-integrity/pkg/command"
	"github.com/sigstore/playbook-integrity/pkg/config"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/logging"
)

const sigstoreSuffix = ".sig"

// experimentalEnv enables keyless mode in cosign v1.
var experimentalEnv = map[string]string{"COSIGN_EXPERIMENTAL": "1"}

// Sigstore signs blobs with cosign, either with an explicit key pair or
// keyless with an OIDC identity token.
type Sigstore struct {
	cfg       config.SchemeConfig
	runner    command.Runner
	logger    logging.Logger
	toolchain *Toolchain
	tokens    TokenSource
}

var _ Backend = (*Sigstore)(nil)

// NewSigstore returns the cosign backend for the sigstore and
// sigstore_keyless schemes.
func NewSigstore(cfg config.SchemeConfig, opts Options) (*Sigstore, error) {
	switch cfg.Scheme {
	case config.SchemeSigstore:
	case config.SchemeSigstoreKeyless:
		if cfg.PrivateKey != "" {
			return nil, integrity.NotSupported("a private key cannot be used for %s signing", cfg.Scheme)
		}
	default:
		return nil, integrity.Configuration("sigstore backend cannot serve scheme %q", cfg.Scheme)
	}

	runner := opts.runner()
	tc := opts.Toolchain
	if tc == nil {
		tc = NewToolchain(ToolchainOptions{Runner: runner, Logger: opts.Logger})
	}
	var tokens TokenSource = StaticToken(cfg.KeylessSignerID)
	if cfg.KeylessSignerID == "" {
		tokens = opts.Tokens
		if tokens == nil {
			tokens = DefaultTokenSource()
		}
	}
	return &Sigstore{
		cfg:       cfg,
		runner:    runner,
		logger:    logging.ForComponent(opts.Logger, "signature.sigstore"),
		toolchain: tc,
		tokens:    tokens,
	}, nil
}

// Scheme implements Backend.
func (s *Sigstore) Scheme() config.Scheme { return s.cfg.Scheme }

// SignatureFile implements Backend.
func (s *Sigstore) SignatureFile(manifestFile string) string { return manifestFile + sigstoreSuffix }

// Sign runs `cosign sign-blob` over manifestFile in dir, writing the
// signature next to it.
func (s *Sigstore) Sign(ctx context.Context, dir, manifestFile string) (command.Result, error) {
	if err := requireDir(dir); err != nil {
		return command.Result{}, err
	}
	cmd := command.Command{Dir: dir}
	switch s.cfg.Scheme {
	case config.SchemeSigstoreKeyless:
		token, err := s.tokens.IDToken(ctx)
		if err != nil {
			return command.Result{}, err
		}
		cmd.Env = experimentalEnv
		cmd.Args = []string{"sign-blob", "--identity-token", token}
	default:
		if s.cfg.PrivateKey == "" {
			return command.Result{}, integrity.Configuration("private_key is required for %s signing", s.cfg.Scheme)
		}
		cmd.Args = []string{"sign-blob", "--key", s.cfg.PrivateKey}
	}
	sigFile := s.SignatureFile(manifestFile)
	cmd.Args = append(cmd.Args, "--output-signature", sigFile, manifestFile)

	if err := removeStale(s.logger, dir, sigFile); err != nil {
		return command.Result{}, err
	}
	cosign, err := s.toolchain.Cosign(ctx)
	if err != nil {
		return command.Result{}, err
	}
	cmd.Name = cosign

	s.logger.Debug("running %s", cmd)
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return res, err
	}
	if !res.Succeeded() {
		return res, toolFailure("cosign", "sign-blob", dir, res)
	}
	s.logger.Info("signed %s with %s", manifestFile, s.cfg.Scheme)
	return res, nil
}

// Verify runs `cosign verify-blob` for signatureFile over manifestFile in
// dir. Keyed verification checks against the configured public key;
// keyless verification checks the certificate and transparency log entry
// embedded by the keyless flow, without constraining the signer identity.
func (s *Sigstore) Verify(ctx context.Context, dir, manifestFile, signatureFile string) (command.Result, error) {
	if err := requireDir(dir); err != nil {
		return command.Result{}, err
	}
	if signatureFile == "" {
		signatureFile = s.SignatureFile(manifestFile)
	}
	if err := requireSignature(dir, signatureFile); err != nil {
		return command.Result{}, err
	}

	cmd := command.Command{Dir: dir, Args: []string{"verify-blob"}}
	switch s.cfg.Scheme {
	case config.SchemeSigstoreKeyless:
		if s.cfg.KeylessSignerID != "" {
			return command.Result{}, config.ErrSignerIdentityUnsupported
		}
		cmd.Env = experimentalEnv
	default:
		if s.cfg.PublicKey == "" {
			return command.Result{}, integrity.Configuration("public_key is required for %s verification", s.cfg.Scheme)
		}
		cmd.Args = append(cmd.Args, "--key", s.cfg.PublicKey)
	}
	cmd.Args = append(cmd.Args, "--signature", signatureFile, manifestFile)

	cosign, err := s.toolchain.Cosign(ctx)
	if err != nil {
		return command.Result{}, err
	}
	cmd.Name = cosign

	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return res, err
	}
	if !res.Succeeded() {
		return res, toolFailure("cosign", "verify-blob", dir, res)
	}
	return res, nil
}
