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
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sigstore/playbook-integrity/pkg/command"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/logging"
)

const (
	// CosignVersion is the release fetched when cosign is not installed.
	CosignVersion = "v1.4.1"
	// DefaultReleaseURL is the base of the cosign release downloads.
	DefaultReleaseURL = "https://github.com/sigstore/cosign/releases/download"

	cosignBinary = "cosign"
)

// ToolchainOptions configures a Toolchain. Zero values select the host
// defaults.
type ToolchainOptions struct {
	Runner command.Runner
	Logger logging.Logger
	// CacheDir keeps fetched binaries between runs. Defaults to
	// <user cache dir>/playbook-integrity.
	CacheDir   string
	ReleaseURL string
	Version    string
	HTTPClient *http.Client
	// LookPath searches the execution path. Defaults to exec.LookPath.
	LookPath func(string) (string, error)
	// OS and Machine name the host as uname would (e.g. "linux",
	// "x86_64").
	OS      string
	Machine string
}

// Toolchain locates the cosign binary, fetching a release when it is not
// installed. The resolved path is remembered for the Toolchain's lifetime.
type Toolchain struct {
	runner     command.Runner
	logger     logging.Logger
	cacheDir   string
	releaseURL string
	version    string
	client     *http.Client
	lookPath   func(string) (string, error)
	goos       string
	machine    string

	mu       sync.Mutex
	resolved string
}

// NewToolchain returns a Toolchain.
func NewToolchain(opts ToolchainOptions) *Toolchain {
	t := &Toolchain{
		runner:     opts.Runner,
		logger:     logging.ForComponent(opts.Logger, "signature.toolchain"),
		cacheDir:   opts.CacheDir,
		releaseURL: strings.TrimSuffix(opts.ReleaseURL, "/"),
		version:    opts.Version,
		client:     opts.HTTPClient,
		lookPath:   opts.LookPath,
		goos:       opts.OS,
		machine:    opts.Machine,
	}
	if t.runner == nil {
		t.runner = command.NewExecRunner(opts.Logger)
	}
	if t.cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		t.cacheDir = filepath.Join(base, "playbook-integrity")
	}
	if t.releaseURL == "" {
		t.releaseURL = DefaultReleaseURL
	}
	if t.version == "" {
		t.version = CosignVersion
	}
	if t.client == nil {
		t.client = http.DefaultClient
	}
	if t.lookPath == nil {
		t.lookPath = exec.LookPath
	}
	if t.goos == "" {
		t.goos = runtime.GOOS
	}
	if t.machine == "" {
		t.machine = hostMachine()
	}
	return t
}

// ReleaseArch maps a uname machine name to the architecture suffix of the
// release artifacts. Unknown names pass through unchanged.
func ReleaseArch(machine string) string {
	switch machine {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	case "ppc64le":
		return "ppc64le"
	case "s390x":
		return "s390x"
	default:
		return machine
	}
}

func hostMachine() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	default:
		return runtime.GOARCH
	}
}

// ReleaseURL returns the download URL of the cosign release for this host.
func (t *Toolchain) ReleaseURL() string {
	return fmt.Sprintf("%s/%s/cosign-%s-%s", t.releaseURL, t.version,
		strings.ToLower(t.goos), ReleaseArch(t.machine))
}

// CachedPath is where a fetched cosign binary is kept.
func (t *Toolchain) CachedPath() string {
	return filepath.Join(t.cacheDir, "cosign-"+t.version, cosignBinary)
}

// Cosign returns the command name or path to run cosign with. It prefers
// an installed cosign, then a previously fetched copy, and otherwise
// fetches the release for this host and runs its one-time initialization.
func (t *Toolchain) Cosign(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved != "" {
		return t.resolved, nil
	}

	if _, err := t.lookPath(cosignBinary); err == nil {
		t.resolved = cosignBinary
		return t.resolved, nil
	}

	cached := t.CachedPath()
	if fi, err := os.Stat(cached); err == nil && fi.Mode().IsRegular() {
		t.logger.Debug("using cached cosign %s", cached)
		t.resolved = cached
		return t.resolved, nil
	}

	if err := t.fetch(ctx, cached); err != nil {
		return "", err
	}
	res, err := t.runner.Run(ctx, command.Command{Name: cached, Args: []string{"initialize"}})
	switch {
	case err != nil:
		t.logger.Warn("cosign initialize: %v", err)
	case !res.Succeeded():
		t.logger.Warn("cosign initialize exited with status %d: %s", res.ReturnCode, strings.TrimSpace(res.Stderr))
	}
	t.resolved = cached
	return t.resolved, nil
}

func (t *Toolchain) fetch(ctx context.Context, dest string) error {
	url := t.ReleaseURL()
	t.logger.Info("cosign not found, fetching %s", url)
	fail := func(msg string, cause error) error {
		return integrity.NewWithPath(integrity.ErrTypeToolAcquisition, url, "failed to install cosign: "+msg, cause)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail("building request", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fail("downloading release", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Sprintf("download returned %s", resp.Status), nil)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fail("creating cache directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".cosign-*")
	if err != nil {
		return fail("creating temporary file", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return fail("writing release", err)
	}
	if err := tmp.Chmod(0o755); err != nil {
		_ = tmp.Close()
		return fail("marking release executable", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("writing release", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fail("installing release", err)
	}
	t.logger.Debug("installed cosign to %s", dest)
	return nil
}
