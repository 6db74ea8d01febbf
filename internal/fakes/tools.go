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

// Package fakes provides in-process stand-ins for the external signing
// tools so signing flows can be tested without gpg or cosign installed.
//
// The fakes honour the argv contracts the signature backends use and
// produce real ECDSA signatures, so a signature made over one manifest does
// not verify over another and a signature made with one key does not verify
// with a different one.
package fakes

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sigstore/sigstore/pkg/cryptoutils"
	sigsig "github.com/sigstore/sigstore/pkg/signature"

	"github.com/sigstore/playbook-integrity/pkg/command"
)

// KeyPair is an ECDSA P-256 key pair written as PEM files.
type KeyPair struct {
	PrivateKeyPath string
	PublicKeyPath  string
}

// WriteKeyPair generates a key pair and writes it under dir with the given
// file name prefix.
func WriteKeyPair(dir, prefix string) (KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	privPEM, err := cryptoutils.MarshalPrivateKeyToPEM(priv)
	if err != nil {
		return KeyPair{}, err
	}
	pubPEM, err := cryptoutils.MarshalPublicKeyToPEM(priv.Public())
	if err != nil {
		return KeyPair{}, err
	}
	kp := KeyPair{
		PrivateKeyPath: filepath.Join(dir, prefix+".key"),
		PublicKeyPath:  filepath.Join(dir, prefix+".pub"),
	}
	if err := os.WriteFile(kp.PrivateKeyPath, privPEM, 0o600); err != nil {
		return KeyPair{}, err
	}
	if err := os.WriteFile(kp.PublicKeyPath, pubPEM, 0o644); err != nil {
		return KeyPair{}, err
	}
	return kp, nil
}

// Tools is a command.Runner that implements gpg and cosign. Commands it
// does not know are passed to Fallback, or fail with status 127.
type Tools struct {
	// GPGKey signs for `gpg --detach-sign`, standing in for the default
	// signing identity.
	GPGKey *ecdsa.PrivateKey
	// Fallback runs every other command.
	Fallback command.Runner

	mu    sync.Mutex
	calls []command.Command
}

var _ command.Runner = (*Tools)(nil)

// NewTools returns Tools with a fresh default gpg identity.
func NewTools() *Tools {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	return &Tools{GPGKey: key}
}

// ExportGPGKeyring writes the default identity's public key to path so it
// can be passed as a keyring.
func (t *Tools) ExportGPGKeyring(path string) error {
	pubPEM, err := cryptoutils.MarshalPublicKeyToPEM(t.GPGKey.Public())
	if err != nil {
		return err
	}
	return os.WriteFile(path, pubPEM, 0o644)
}

// Calls returns every command run so far.
func (t *Tools) Calls() []command.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]command.Command(nil), t.calls...)
}

// Run implements command.Runner.
func (t *Tools) Run(ctx context.Context, c command.Command) (command.Result, error) {
	t.mu.Lock()
	t.calls = append(t.calls, c)
	t.mu.Unlock()

	switch filepath.Base(c.Name) {
	case "gpg":
		return t.gpg(c), nil
	case "cosign":
		return t.cosign(c), nil
	}
	if t.Fallback != nil {
		return t.Fallback.Run(ctx, c)
	}
	return command.Result{ReturnCode: 127, Stderr: c.Name + ": command not found\n"}, nil
}

func fail(format string, args ...any) command.Result {
	return command.Result{ReturnCode: 1, Stderr: fmt.Sprintf(format, args...) + "\n"}
}

func (t *Tools) gpg(c command.Command) command.Result {
	args := c.Args
	var keyring string
	var op, file string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--detach-sign", "--verify":
			op = args[i]
		case "--no-default-keyring":
		case "--keyring":
			i++
			if i < len(args) {
				keyring = args[i]
			}
		default:
			file = args[i]
		}
	}
	switch op {
	case "--detach-sign":
		msg, err := os.ReadFile(filepath.Join(c.Dir, file))
		if err != nil {
			return fail("gpg: can't open '%s': %v", file, err)
		}
		sig, err := sign(t.GPGKey, msg)
		if err != nil {
			return fail("gpg: signing failed: %v", err)
		}
		if err := os.WriteFile(filepath.Join(c.Dir, file+".gpg"), sig, 0o644); err != nil {
			return fail("gpg: writing signature: %v", err)
		}
		return command.Result{}
	case "--verify":
		pub := t.GPGKey.Public()
		if keyring != "" {
			home := c.Env["GNUPGHOME"]
			if fi, err := os.Stat(home); home == "" || err != nil || !fi.IsDir() {
				return fail("gpg: keyblock resource '%s': No such file or directory", home)
			}
			k, err := readPublicKey(keyring)
			if err != nil {
				return fail("gpg: keyblock resource '%s': %v", keyring, err)
			}
			pub = k
		}
		msgFile := strings.TrimSuffix(file, ".gpg")
		if err := verify(pub, filepath.Join(c.Dir, msgFile), filepath.Join(c.Dir, file)); err != nil {
			return fail("gpg: BAD signature from \"test\": %v", err)
		}
		return command.Result{Stderr: "gpg: Good signature from \"test\"\n"}
	default:
		return fail("gpg: unsupported invocation %v", args)
	}
}

func (t *Tools) cosign(c command.Command) command.Result {
	if len(c.Args) == 0 {
		return fail("Error: missing command")
	}
	flags := map[string]string{}
	var positional []string
	for i := 1; i < len(c.Args); i++ {
		a := c.Args[i]
		if strings.HasPrefix(a, "--") && i+1 < len(c.Args) {
			flags[a] = c.Args[i+1]
			i++
			continue
		}
		positional = append(positional, a)
	}
	keyless := c.Env["COSIGN_EXPERIMENTAL"] == "1"

	switch c.Args[0] {
	case "initialize":
		return command.Result{}
	case "sign-blob":
		if len(positional) != 1 || flags["--output-signature"] == "" {
			return fail("Error: sign-blob needs one blob and --output-signature")
		}
		msg, err := os.ReadFile(filepath.Join(c.Dir, positional[0]))
		if err != nil {
			return fail("Error: reading blob: %v", err)
		}
		var sig []byte
		switch {
		case flags["--key"] != "":
			priv, err := readPrivateKey(flags["--key"])
			if err != nil {
				return fail("Error: loading key: %v", err)
			}
			sig, err = sign(priv, msg)
			if err != nil {
				return fail("Error: signing: %v", err)
			}
		case keyless && flags["--identity-token"] != "":
			sig = keylessSignature(flags["--identity-token"], msg)
		default:
			return fail("Error: signing requires --key or COSIGN_EXPERIMENTAL=1 with --identity-token")
		}
		if err := os.WriteFile(filepath.Join(c.Dir, flags["--output-signature"]), sig, 0o644); err != nil {
			return fail("Error: writing signature: %v", err)
		}
		return command.Result{Stdout: string(sig) + "\n"}
	case "verify-blob":
		if len(positional) != 1 || flags["--signature"] == "" {
			return fail("Error: verify-blob needs one blob and --signature")
		}
		msgPath := filepath.Join(c.Dir, positional[0])
		sigPath := filepath.Join(c.Dir, flags["--signature"])
		switch {
		case flags["--key"] != "":
			pub, err := readPublicKey(flags["--key"])
			if err != nil {
				return fail("Error: loading public key: %v", err)
			}
			if err := verify(pub, msgPath, sigPath); err != nil {
				return fail("Error: verifying blob: %v", err)
			}
		case keyless:
			msg, err := os.ReadFile(msgPath)
			if err != nil {
				return fail("Error: reading blob: %v", err)
			}
			sig, err := os.ReadFile(sigPath)
			if err != nil {
				return fail("Error: reading signature: %v", err)
			}
			if !bytes.HasPrefix(sig, []byte("keyless:")) || !bytes.Equal(sig, keylessSignature(keylessSubject(sig), msg)) {
				return fail("Error: verifying blob: invalid signature")
			}
		default:
			return fail("Error: verify-blob requires --key or COSIGN_EXPERIMENTAL=1")
		}
		return command.Result{Stderr: "Verified OK\n"}
	default:
		return fail("Error: unknown command %q for \"cosign\"", c.Args[0])
	}
}

func sign(priv *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	signer, err := sigsig.LoadSigner(priv, crypto.SHA256)
	if err != nil {
		return nil, err
	}
	raw, err := signer.SignMessage(bytes.NewReader(msg))
	if err != nil {
		return nil, err
	}
	return []byte(base64.StdEncoding.EncodeToString(raw)), nil
}

func verify(pub crypto.PublicKey, msgPath, sigPath string) error {
	msg, err := os.ReadFile(msgPath)
	if err != nil {
		return err
	}
	b64, err := os.ReadFile(sigPath)
	if err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(b64)))
	if err != nil {
		return err
	}
	verifier, err := sigsig.LoadVerifier(pub, crypto.SHA256)
	if err != nil {
		return err
	}
	return verifier.VerifySignature(bytes.NewReader(raw), bytes.NewReader(msg))
}

// keylessSignature binds the token subject to the message digest. It is
// not a real certificate flow, only enough to tell tokens and messages
// apart.
func keylessSignature(token string, msg []byte) []byte {
	return []byte(fmt.Sprintf("keyless:%s:%x", token, sha256.Sum256(msg)))
}

func keylessSubject(sig []byte) string {
	parts := strings.SplitN(string(sig), ":", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

func readPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		if ec, ecErr := x509.ParseECPrivateKey(block.Bytes); ecErr == nil {
			return ec, nil
		}
		return nil, err
	}
	ec, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T", key)
	}
	return ec, nil
}

func readPublicKey(path string) (crypto.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return cryptoutils.UnmarshalPEMToPublicKey(data)
}
