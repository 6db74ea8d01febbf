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
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigstore/playbook-integrity/internal/fakes"
	"github.com/sigstore/playbook-integrity/pkg/command"
	"github.com/sigstore/playbook-integrity/pkg/config"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/logging"
)

const manifestName = "sha256sum.txt"

func tree(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestName), []byte(content), 0o644))
	return dir
}

// installedCosign resolves cosign from PATH without touching the network.
func installedCosign(runner command.Runner) *Toolchain {
	return NewToolchain(ToolchainOptions{
		Runner:   runner,
		Logger:   logging.Discard(),
		LookPath: func(string) (string, error) { return "/usr/bin/cosign", nil },
	})
}

func newBackend(t *testing.T, cfg config.SchemeConfig, tools *fakes.Tools) Backend {
	t.Helper()
	b, err := New(cfg, Options{
		Runner:    tools,
		Logger:    logging.Discard(),
		Toolchain: installedCosign(tools),
	})
	require.NoError(t, err)
	return b
}

func TestNewDispatch(t *testing.T) {
	tests := []struct {
		cfg     config.SchemeConfig
		want    config.Scheme
		wantErr integrity.ErrorType
	}{
		{cfg: config.SchemeConfig{Scheme: config.SchemeGPG}, want: config.SchemeGPG},
		{cfg: config.SchemeConfig{Scheme: config.SchemeSigstore}, want: config.SchemeSigstore},
		{cfg: config.SchemeConfig{Scheme: config.SchemeSigstoreKeyless}, want: config.SchemeSigstoreKeyless},
		{cfg: config.SchemeConfig{Scheme: "x509"}, wantErr: integrity.ErrTypeNotSupported},
		{cfg: config.SchemeConfig{Scheme: config.SchemeGPG, PrivateKey: "k"}, wantErr: integrity.ErrTypeNotSupported},
		{cfg: config.SchemeConfig{Scheme: config.SchemeSigstoreKeyless, PrivateKey: "k"}, wantErr: integrity.ErrTypeNotSupported},
	}
	for _, tt := range tests {
		t.Run(string(tt.cfg.Scheme), func(t *testing.T) {
			b, err := New(tt.cfg, Options{Logger: logging.Discard()})
			if tt.wantErr != integrity.ErrTypeUnknown {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, integrity.TypeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Scheme())
		})
	}
}

func TestFileName(t *testing.T) {
	for scheme, want := range map[config.Scheme]string{
		config.SchemeGPG:             "sha256sum.txt.gpg",
		config.SchemeSigstore:        "sha256sum.txt.sig",
		config.SchemeSigstoreKeyless: "sha256sum.txt.sig",
	} {
		got, err := FileName(scheme, manifestName)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := FileName("pgp", manifestName)
	assert.True(t, integrity.IsType(err, integrity.ErrTypeNotSupported))
}

func TestGPGSignVerify(t *testing.T) {
	ctx := context.Background()
	tools := fakes.NewTools()
	dir := tree(t, "abc  a.txt\n")
	b := newBackend(t, config.SchemeConfig{Scheme: config.SchemeGPG}, tools)

	_, err := b.Sign(ctx, dir, manifestName)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "sha256sum.txt.gpg"))
	assert.Equal(t, []string{"gpg", "--detach-sign", manifestName}, tools.Calls()[0].Argv())
	assert.Equal(t, dir, tools.Calls()[0].Dir)

	res, err := b.Verify(ctx, dir, manifestName, "")
	require.NoError(t, err)
	assert.Contains(t, res.Stderr, "Good signature")

	// the signature no longer matches after the manifest changes
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestName), []byte("def  a.txt\n"), 0o644))
	res, err = b.Verify(ctx, dir, manifestName, "")
	require.Error(t, err)
	assert.True(t, integrity.IsType(err, integrity.ErrTypeBackend))
	assert.Equal(t, 1, res.ReturnCode)
	assert.Contains(t, integrity.DetailOf(err), "BAD signature")
}

func TestGPGVerifyWithKeyring(t *testing.T) {
	ctx := context.Background()
	tools := fakes.NewTools()
	dir := tree(t, "abc  a.txt\n")
	keyring := filepath.Join(t.TempDir(), "pubring.pem")
	require.NoError(t, tools.ExportGPGKeyring(keyring))

	signer := newBackend(t, config.SchemeConfig{Scheme: config.SchemeGPG}, tools)
	_, err := signer.Sign(ctx, dir, manifestName)
	require.NoError(t, err)

	verifier := newBackend(t, config.SchemeConfig{Scheme: config.SchemeGPG, PublicKey: keyring}, tools)
	_, err = verifier.Verify(ctx, dir, manifestName, "sha256sum.txt.gpg")
	require.NoError(t, err)

	calls := tools.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, []string{"gpg", "--verify", "--no-default-keyring", "--keyring", keyring, "sha256sum.txt.gpg"}, last.Argv())
	home := last.Env["GNUPGHOME"]
	require.NotEmpty(t, home)
	// the per-invocation home is gone once verification returns
	_, statErr := os.Stat(home)
	assert.True(t, os.IsNotExist(statErr))

	// a keyring holding another key must not verify
	other := fakes.NewTools()
	otherRing := filepath.Join(t.TempDir(), "other.pem")
	require.NoError(t, other.ExportGPGKeyring(otherRing))
	wrong := newBackend(t, config.SchemeConfig{Scheme: config.SchemeGPG, PublicKey: otherRing}, tools)
	_, err = wrong.Verify(ctx, dir, manifestName, "")
	assert.True(t, integrity.IsType(err, integrity.ErrTypeBackend))
}

func TestGPGSignReplacesPreviousSignature(t *testing.T) {
	ctx := context.Background()
	tools := fakes.NewTools()
	dir := tree(t, "abc  a.txt\n")
	b := newBackend(t, config.SchemeConfig{Scheme: config.SchemeGPG}, tools)

	_, err := b.Sign(ctx, dir, manifestName)
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(dir, "sha256sum.txt.gpg"))
	require.NoError(t, err)

	_, err = b.Sign(ctx, dir, manifestName)
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, "sha256sum.txt.gpg"))
	require.NoError(t, err)
	// ECDSA signatures are randomized, so a replaced artifact differs
	assert.NotEqual(t, first, second)

	matches, err := filepath.Glob(filepath.Join(dir, "sha256sum.txt.*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	_, err = b.Verify(ctx, dir, manifestName, "")
	assert.NoError(t, err)
}

func TestSignRemovesStaleSignatureOnFailure(t *testing.T) {
	dir := tree(t, "abc  a.txt\n")
	stale := filepath.Join(dir, "sha256sum.txt.gpg")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	failing := command.RunnerFunc(func(context.Context, command.Command) (command.Result, error) {
		return command.Result{ReturnCode: 2, Stderr: "gpg: no default secret key\n"}, nil
	})
	b, err := NewGPG(config.SchemeConfig{Scheme: config.SchemeGPG}, Options{Runner: failing, Logger: logging.Discard()})
	require.NoError(t, err)

	res, err := b.Sign(context.Background(), dir, manifestName)
	assert.True(t, integrity.IsType(err, integrity.ErrTypeBackend))
	assert.Equal(t, 2, res.ReturnCode)
	assert.NoFileExists(t, stale)
}

func TestPreconditions(t *testing.T) {
	ctx := context.Background()
	tools := fakes.NewTools()
	kp, err := fakes.WriteKeyPair(t.TempDir(), "cosign")
	require.NoError(t, err)

	for _, cfg := range []config.SchemeConfig{
		{Scheme: config.SchemeGPG},
		{Scheme: config.SchemeSigstore, PrivateKey: kp.PrivateKeyPath, PublicKey: kp.PublicKeyPath},
		{Scheme: config.SchemeSigstoreKeyless, KeylessSignerID: "token"},
	} {
		t.Run(string(cfg.Scheme), func(t *testing.T) {
			b := newBackend(t, cfg, tools)
			missing := filepath.Join(t.TempDir(), "missing")

			_, err := b.Sign(ctx, missing, manifestName)
			assert.True(t, integrity.IsType(err, integrity.ErrTypeNotFound), "sign: %v", err)
			_, err = b.Verify(ctx, missing, manifestName, "")
			assert.True(t, integrity.IsType(err, integrity.ErrTypeNotFound), "verify dir: %v", err)

			dir := tree(t, "abc  a.txt\n")
			before := len(tools.Calls())
			_, err = b.Verify(ctx, dir, manifestName, "")
			assert.True(t, integrity.IsType(err, integrity.ErrTypeNotFound), "verify sig: %v", err)
			assert.Len(t, tools.Calls(), before, "no tool runs without a signature")
		})
	}
}

func TestSigstoreKeyed(t *testing.T) {
	ctx := context.Background()
	tools := fakes.NewTools()
	keys := t.TempDir()
	kp, err := fakes.WriteKeyPair(keys, "cosign")
	require.NoError(t, err)
	other, err := fakes.WriteKeyPair(keys, "other")
	require.NoError(t, err)
	dir := tree(t, "abc  a.txt\n")

	signer := newBackend(t, config.SchemeConfig{Scheme: config.SchemeSigstore, PrivateKey: kp.PrivateKeyPath}, tools)
	_, err = signer.Sign(ctx, dir, manifestName)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "sha256sum.txt.sig"))
	assert.Equal(t, []string{
		"cosign", "sign-blob", "--key", kp.PrivateKeyPath,
		"--output-signature", "sha256sum.txt.sig", manifestName,
	}, tools.Calls()[0].Argv())

	good := newBackend(t, config.SchemeConfig{Scheme: config.SchemeSigstore, PublicKey: kp.PublicKeyPath}, tools)
	_, err = good.Verify(ctx, dir, manifestName, "")
	require.NoError(t, err)
	calls := tools.Calls()
	assert.Equal(t, []string{
		"cosign", "verify-blob", "--key", kp.PublicKeyPath,
		"--signature", "sha256sum.txt.sig", manifestName,
	}, calls[len(calls)-1].Argv())

	bad := newBackend(t, config.SchemeConfig{Scheme: config.SchemeSigstore, PublicKey: other.PublicKeyPath}, tools)
	res, err := bad.Verify(ctx, dir, manifestName, "")
	require.Error(t, err)
	assert.True(t, integrity.IsType(err, integrity.ErrTypeBackend))
	assert.NotZero(t, res.ReturnCode)
}

func TestSigstoreKeyless(t *testing.T) {
	ctx := context.Background()
	tools := fakes.NewTools()
	dir := tree(t, "abc  a.txt\n")

	signer := newBackend(t, config.SchemeConfig{Scheme: config.SchemeSigstoreKeyless, KeylessSignerID: "id-token"}, tools)
	_, err := signer.Sign(ctx, dir, manifestName)
	require.NoError(t, err)
	sign := tools.Calls()[0]
	assert.Equal(t, "1", sign.Env["COSIGN_EXPERIMENTAL"])
	assert.Equal(t, []string{
		"cosign", "sign-blob", "--identity-token", "id-token",
		"--output-signature", "sha256sum.txt.sig", manifestName,
	}, sign.Argv())
	assert.NotContains(t, sign.String(), "id-token")

	verifier := newBackend(t, config.SchemeConfig{Scheme: config.SchemeSigstoreKeyless}, tools)
	_, err = verifier.Verify(ctx, dir, manifestName, "")
	require.NoError(t, err)
	calls := tools.Calls()
	verify := calls[len(calls)-1]
	assert.Equal(t, "1", verify.Env["COSIGN_EXPERIMENTAL"])
	assert.Equal(t, []string{"cosign", "verify-blob", "--signature", "sha256sum.txt.sig", manifestName}, verify.Argv())

	// an expected identity cannot be enforced, so it is refused before cosign runs
	before := len(tools.Calls())
	pinned := newBackend(t, config.SchemeConfig{Scheme: config.SchemeSigstoreKeyless, KeylessSignerID: "mallory"}, tools)
	_, err = pinned.Verify(ctx, dir, manifestName, "")
	require.Error(t, err)
	assert.True(t, integrity.IsType(err, integrity.ErrTypeNotSupported), "got %v", err)
	assert.Len(t, tools.Calls(), before)

	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestName), []byte("tampered\n"), 0o644))
	_, err = verifier.Verify(ctx, dir, manifestName, "")
	assert.True(t, integrity.IsType(err, integrity.ErrTypeBackend))
}

func TestSigstoreKeylessTokenSource(t *testing.T) {
	ctx := context.Background()
	tools := fakes.NewTools()
	dir := tree(t, "abc  a.txt\n")

	b, err := New(config.SchemeConfig{Scheme: config.SchemeSigstoreKeyless}, Options{
		Runner:    tools,
		Logger:    logging.Discard(),
		Toolchain: installedCosign(tools),
		Tokens: &OIDCTokenSource{Getenv: func(k string) string {
			if k == "SIGSTORE_ID_TOKEN" {
				return "ambient"
			}
			return ""
		}},
	})
	require.NoError(t, err)
	_, err = b.Sign(ctx, dir, manifestName)
	require.NoError(t, err)
	assert.Contains(t, tools.Calls()[0].Args, "ambient")

	none, err := New(config.SchemeConfig{Scheme: config.SchemeSigstoreKeyless}, Options{
		Runner:    tools,
		Logger:    logging.Discard(),
		Toolchain: installedCosign(tools),
		Tokens:    &OIDCTokenSource{Getenv: func(string) string { return "" }},
	})
	require.NoError(t, err)
	_, err = none.Sign(ctx, dir, manifestName)
	assert.True(t, integrity.IsType(err, integrity.ErrTypeConfiguration))
}

func TestOIDCTokenSourceOrder(t *testing.T) {
	var gotAuth, gotAudience string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAudience = r.URL.Query().Get("audience")
		_, _ = w.Write([]byte(`{"count":1,"value":"gh-id-token"}`))
	}))
	defer srv.Close()

	env := map[string]string{
		"SIGSTORE_ID_TOKEN":              "first",
		"ACTIONS_ID_TOKEN_REQUEST_TOKEN": "gh-request-bearer",
		"ACTIONS_ID_TOKEN_REQUEST_URL":   srv.URL + "/token?api-version=2.0",
	}
	src := &OIDCTokenSource{Getenv: func(k string) string { return env[k] }, HTTPClient: srv.Client()}
	tok, err := src.IDToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", tok)
	assert.Empty(t, gotAuth, "no exchange when SIGSTORE_ID_TOKEN is set")

	delete(env, "SIGSTORE_ID_TOKEN")
	tok, err = src.IDToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gh-id-token", tok)
	assert.Equal(t, "Bearer gh-request-bearer", gotAuth)
	assert.Equal(t, "sigstore", gotAudience)

	_, err = StaticToken("").IDToken(context.Background())
	assert.Error(t, err)
}

func TestOIDCTokenSourceNeverReturnsRequestBearer(t *testing.T) {
	t.Run("no exchange endpoint", func(t *testing.T) {
		src := &OIDCTokenSource{Getenv: func(k string) string {
			if k == "ACTIONS_ID_TOKEN_REQUEST_TOKEN" {
				return "gh-request-bearer"
			}
			return ""
		}}
		tok, err := src.IDToken(context.Background())
		require.Error(t, err)
		assert.Empty(t, tok)
		assert.True(t, integrity.IsType(err, integrity.ErrTypeConfiguration), "got %v", err)
	})

	t.Run("exchange refused", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()
		env := map[string]string{
			"ACTIONS_ID_TOKEN_REQUEST_TOKEN": "gh-request-bearer",
			"ACTIONS_ID_TOKEN_REQUEST_URL":   srv.URL,
		}
		src := &OIDCTokenSource{Getenv: func(k string) string { return env[k] }, HTTPClient: srv.Client()}
		tok, err := src.IDToken(context.Background())
		require.Error(t, err)
		assert.Empty(t, tok)
		assert.True(t, integrity.IsType(err, integrity.ErrTypeBackend), "got %v", err)
	})
}

func TestToolFailureCarriesStderr(t *testing.T) {
	err := toolFailure("cosign", "verify-blob", "/srv", command.Result{ReturnCode: 1, Stderr: "bad\n"})
	var ie *integrity.Error
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "bad\n", ie.Detail)
	assert.Contains(t, ie.Message, "status 1")
}
