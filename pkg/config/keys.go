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

package config

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"io/fs"
	"os"

	"github.com/sigstore/sigstore/pkg/cryptoutils"

	"github.com/sigstore/playbook-integrity/pkg/integrity"
)

// LoadPublicKey reads a PEM encoded public key of the kind cosign accepts
// with --key. It is used to reject unusable keys before cosign is run.
func LoadPublicKey(path string) (crypto.PublicKey, error) {
	if path == "" {
		return nil, integrity.Configuration("public key path is required")
	}

	pemBytes, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, integrity.NotFound(path, "public key does not exist")
		}
		return nil, integrity.NewWithPath(integrity.ErrTypeIO, path, "reading public key", err)
	}

	key, err := cryptoutils.UnmarshalPEMToPublicKey(pemBytes)
	if err != nil {
		return nil, integrity.NewWithPath(integrity.ErrTypeConfiguration, path, "parsing public key", err)
	}
	return validatePublicKey(path, key)
}

// validatePublicKey accepts ECDSA (P-256, P-384, P-521), RSA and Ed25519.
func validatePublicKey(path string, key crypto.PublicKey) (crypto.PublicKey, error) {
	switch k := key.(type) {
	case *ecdsa.PublicKey:
		switch k.Curve.Params().Name {
		case "P-256", "P-384", "P-521":
			return k, nil
		}
		return nil, integrity.NewWithPath(integrity.ErrTypeConfiguration, path,
			"unsupported elliptic curve "+k.Curve.Params().Name, nil)
	case *rsa.PublicKey:
		return k, nil
	case ed25519.PublicKey:
		return k, nil
	default:
		return nil, integrity.NewWithPath(integrity.ErrTypeConfiguration, path, "unsupported public key type", nil)
	}
}
