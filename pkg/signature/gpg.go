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
	"github.com/sigstore/playbook-integrity/pkg/utils"
)

const (
	gpgSuffix = ".gpg"
	gpgHome   = "gnupg"
)

// GPG signs with a detached signature from the caller's default signing
// identity.
type GPG struct {
	publicKeyring string
	runner        command.Runner
	logger        logging.Logger
	scratch       *utils.ScratchDir
}

var _ Backend = (*GPG)(nil)

// NewGPG returns the gpg backend. Selecting a private key is not
// supported.
func NewGPG(cfg config.SchemeConfig, opts Options) (*GPG, error) {
	if cfg.Scheme != config.SchemeGPG {
		return nil, integrity.Configuration("gpg backend cannot serve scheme %q", cfg.Scheme)
	}
	if cfg.PrivateKey != "" {
		return nil, integrity.NotSupported("selecting a private key is not supported for gpg signing; the default signing identity is used")
	}
	return &GPG{
		publicKeyring: cfg.PublicKey,
		runner:        opts.runner(),
		logger:        logging.ForComponent(opts.Logger, "signature.gpg"),
		scratch:       opts.Scratch,
	}, nil
}

// Scheme implements Backend.
func (g *GPG) Scheme() config.Scheme { return config.SchemeGPG }

// SignatureFile implements Backend.
func (g *GPG) SignatureFile(manifestFile string) string { return manifestFile + gpgSuffix }

// Sign runs `gpg --detach-sign <manifest>` in dir.
func (g *GPG) Sign(ctx context.Context, dir, manifestFile string) (command.Result, error) {
	if err := requireDir(dir); err != nil {
		return command.Result{}, err
	}
	if err := removeStale(g.logger, dir, g.SignatureFile(manifestFile)); err != nil {
		return command.Result{}, err
	}

	res, err := g.runner.Run(ctx, command.Command{
		Name: "gpg",
		Args: []string{"--detach-sign", manifestFile},
		Dir:  dir,
	})
	if err != nil {
		return res, err
	}
	if !res.Succeeded() {
		return res, toolFailure("gpg", "--detach-sign", dir, res)
	}
	g.logger.Info("signed %s with gpg", manifestFile)
	return res, nil
}

// Verify runs `gpg --verify <signature>` in dir. With a public keyring the
// default keyring is disabled and GNUPGHOME points at an empty directory
// owned by this invocation, so no ambient trust leaks in and the caller's
// keyring is left untouched.
func (g *GPG) Verify(ctx context.Context, dir, manifestFile, signatureFile string) (command.Result, error) {
	if err := requireDir(dir); err != nil {
		return command.Result{}, err
	}
	if signatureFile == "" {
		signatureFile = g.SignatureFile(manifestFile)
	}
	if err := requireSignature(dir, signatureFile); err != nil {
		return command.Result{}, err
	}

	cmd := command.Command{Name: "gpg", Args: []string{"--verify"}, Dir: dir}
	if g.publicKeyring != "" {
		scratch := g.scratch
		if scratch == nil {
			var err error
			if scratch, err = utils.NewScratchDir("gpg"); err != nil {
				return command.Result{}, err
			}
			defer scratch.Remove()
		}
		home, err := scratch.Subdir(gpgHome)
		if err != nil {
			return command.Result{}, err
		}
		cmd.Env = map[string]string{"GNUPGHOME": home}
		cmd.Args = append(cmd.Args, "--no-default-keyring", "--keyring", g.publicKeyring)
	}
	cmd.Args = append(cmd.Args, signatureFile)

	res, err := g.runner.Run(ctx, cmd)
	if err != nil {
		return res, err
	}
	if !res.Succeeded() {
		return res, toolFailure("gpg", "--verify", dir, res)
	}
	return res, nil
}
