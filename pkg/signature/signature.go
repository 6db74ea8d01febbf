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

// Package signature binds a manifest to a signature under one of the
// supported schemes.
//
// Every scheme drives an external tool (gpg or cosign) through a
// command.Runner and stores its artifact next to the manifest under a
// scheme-specific name. Backends never interpret the artifact themselves.
package signature

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sigstore/playbook-integrity/pkg/command"
	"github.com/sigstore/playbook-integrity/pkg/config"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/logging"
	"github.com/sigstore/playbook-integrity/pkg/utils"
)

// Backend signs and verifies a manifest file inside a directory.
//
// A non-zero exit of the underlying tool is returned as a Backend error
// together with the captured result.
type Backend interface {
	// Scheme returns the scheme this backend implements.
	Scheme() config.Scheme
	// SignatureFile returns the artifact name for manifestFile.
	SignatureFile(manifestFile string) string
	// Sign replaces any existing signature of manifestFile in dir.
	Sign(ctx context.Context, dir, manifestFile string) (command.Result, error)
	// Verify checks signatureFile against manifestFile in dir.
	Verify(ctx context.Context, dir, manifestFile, signatureFile string) (command.Result, error)
}

// Options carries the collaborators shared by all backends.
type Options struct {
	Runner command.Runner
	Logger logging.Logger
	// Scratch holds per-invocation state such as the isolated GPG home.
	// When nil a backend creates and removes its own.
	Scratch *utils.ScratchDir
	// Toolchain locates cosign. Nil uses NewToolchain with Runner and Logger.
	Toolchain *Toolchain
	// Tokens supplies identity tokens for keyless signing when the scheme
	// configuration carries none. Nil uses DefaultTokenSource.
	Tokens TokenSource
}

func (o Options) runner() command.Runner {
	if o.Runner != nil {
		return o.Runner
	}
	return command.NewExecRunner(o.Logger)
}

// New returns the backend for cfg.Scheme.
func New(cfg config.SchemeConfig, opts Options) (Backend, error) {
	switch cfg.Scheme {
	case config.SchemeGPG:
		return NewGPG(cfg, opts)
	case config.SchemeSigstore, config.SchemeSigstoreKeyless:
		return NewSigstore(cfg, opts)
	default:
		return nil, integrity.NotSupported("this signature type is not supported: %q", cfg.Scheme)
	}
}

// FileName returns the signature artifact name scheme s uses for
// manifestFile.
func FileName(s config.Scheme, manifestFile string) (string, error) {
	switch s {
	case config.SchemeGPG:
		return manifestFile + gpgSuffix, nil
	case config.SchemeSigstore, config.SchemeSigstoreKeyless:
		return manifestFile + sigstoreSuffix, nil
	default:
		return "", integrity.NotSupported("this signature type is not supported: %q", s)
	}
}

func requireDir(dir string) error {
	return utils.ValidateFolderExists("target directory", dir)
}

func requireSignature(dir, signatureFile string) error {
	p := filepath.Join(dir, signatureFile)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return integrity.NotFound(p, fmt.Sprintf("signature file %q does not exist in %q", signatureFile, dir))
		}
		return integrity.NewWithPath(integrity.ErrTypeIO, p, "checking signature file", err)
	}
	return nil
}

// removeStale deletes a previous signature so a failed signing run never
// leaves the old artifact looking current.
func removeStale(logger logging.Logger, dir, signatureFile string) error {
	p := filepath.Join(dir, signatureFile)
	err := os.Remove(p)
	switch {
	case err == nil:
		logger.Debug("removed previous signature %s", p)
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return integrity.NewWithPath(integrity.ErrTypeIO, p, "removing previous signature", err)
	}
}

func toolFailure(tool, op, dir string, res command.Result) error {
	return &integrity.Error{
		Type:    integrity.ErrTypeBackend,
		Path:    dir,
		Message: fmt.Sprintf("%s %s exited with status %d", tool, op, res.ReturnCode),
		Detail:  res.Stderr,
	}
}
