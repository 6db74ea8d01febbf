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

// Package config holds the configuration surface of playbook-integrity: the
// closed sets of resource types and signature schemes, the per-scheme
// parameter bundle, and the parameter document accepted from a host
// automation wrapper.
//
// Everything in this package is validated before any external process is
// started. Unknown types and schemes are NotSupported errors; missing or
// malformed values are Configuration errors.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/kaptinlin/jsonschema"

	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/utils"
)

// Operation selects which side of the pipeline a configuration is for.
type Operation int

const (
	OperationSign Operation = iota
	OperationVerify
)

func (o Operation) String() string {
	switch o {
	case OperationSign:
		return "sign"
	case OperationVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// Params is the raw parameter document, as supplied by a host wrapper or on
// the command line.
type Params struct {
	Type            string `json:"type" yaml:"type"`
	Target          string `json:"target" yaml:"target"`
	SignatureType   string `json:"signature_type,omitempty" yaml:"signature_type,omitempty"`
	PrivateKey      string `json:"private_key,omitempty" yaml:"private_key,omitempty"`
	PublicKey       string `json:"public_key,omitempty" yaml:"public_key,omitempty"`
	KeylessSignerID string `json:"keyless_signer_id,omitempty" yaml:"keyless_signer_id,omitempty"`
	Action          string `json:"action,omitempty" yaml:"action,omitempty"`
}

// Resolved is a validated configuration.
type Resolved struct {
	Type   ResourceType
	Target string
	Scheme SchemeConfig
	Action Action
}

//go:embed params.schema.json
var paramsSchemaJSON []byte

var (
	paramsSchemaOnce sync.Once
	paramsSchema     *jsonschema.Schema
	paramsSchemaErr  error
)

func compiledParamsSchema() (*jsonschema.Schema, error) {
	paramsSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		paramsSchema, paramsSchemaErr = compiler.Compile(paramsSchemaJSON)
	})
	return paramsSchema, paramsSchemaErr
}

// LoadParams reads a YAML or JSON parameter document and checks it against
// the parameter schema.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, integrity.NotFound(path, "parameter file does not exist")
		}
		return nil, integrity.NewWithPath(integrity.ErrTypeIO, path, "reading parameter file", err)
	}
	return ParseParams(data)
}

// ParseParams decodes a YAML or JSON parameter document.
func ParseParams(data []byte) (*Params, error) {
	asJSON, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, integrity.New(integrity.ErrTypeConfiguration, "parameter document is not valid YAML or JSON", err)
	}

	schema, err := compiledParamsSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling parameter schema: %w", err)
	}
	result := schema.ValidateJSON(asJSON)
	if !result.IsValid() {
		return nil, integrity.Configuration("parameter document is invalid: %v", result.Errors)
	}

	var p Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, integrity.New(integrity.ErrTypeConfiguration, "decoding parameter document", err)
	}
	return &p, nil
}

// Resolve validates p for the given operation.
// An omitted type selects ResourceTypePlaybook.
func (p Params) Resolve(op Operation) (*Resolved, error) {
	rt := ResourceTypePlaybook
	if strings.TrimSpace(p.Type) != "" {
		var err error
		if rt, err = ParseResourceType(p.Type); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(p.Target) == "" {
		return nil, integrity.Configuration("target is required")
	}
	target, err := utils.ExpandHome(p.Target)
	if err != nil {
		return nil, integrity.New(integrity.ErrTypeConfiguration, "expanding target", err)
	}
	if target, err = filepath.Abs(target); err != nil {
		return nil, integrity.New(integrity.ErrTypeConfiguration, "resolving target", err)
	}
	scheme, err := ParseScheme(p.SignatureType)
	if err != nil {
		return nil, err
	}
	action, err := ParseAction(p.Action)
	if err != nil {
		return nil, err
	}

	privateKey, err := keyRef(p.PrivateKey)
	if err != nil {
		return nil, err
	}
	publicKey, err := keyRef(p.PublicKey)
	if err != nil {
		return nil, err
	}

	sc := SchemeConfig{
		Scheme:          scheme,
		PrivateKey:      privateKey,
		PublicKey:       publicKey,
		KeylessSignerID: p.KeylessSignerID,
	}
	if err := sc.Validate(op); err != nil {
		return nil, err
	}
	return &Resolved{Type: rt, Target: target, Scheme: sc, Action: action}, nil
}

// keyRef makes a local key path absolute, since the signing tools run with
// the target directory as their working directory. KMS style references
// ("scheme://...") are returned unchanged.
func keyRef(ref string) (string, error) {
	if ref == "" || strings.Contains(ref, "://") {
		return ref, nil
	}
	expanded, err := utils.ExpandHome(ref)
	if err != nil {
		return "", integrity.New(integrity.ErrTypeConfiguration, "expanding key path", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", integrity.New(integrity.ErrTypeConfiguration, "resolving key path", err)
	}
	return abs, nil
}

// ErrSignerIdentityUnsupported is returned when keyless verification is
// given an expected signer identity. The pinned cosign release cannot
// constrain the certificate identity.
// TODO: pin a cosign release with --certificate-identity and
// --certificate-oidc-issuer and pass the identity through.
var ErrSignerIdentityUnsupported = integrity.NotSupported("keyless_signer_id cannot be enforced when verifying %s signatures", SchemeSigstoreKeyless)

// Validate checks that c carries what its scheme needs for op.
func (c SchemeConfig) Validate(op Operation) error {
	switch c.Scheme {
	case SchemeGPG:
		if op == OperationSign && c.PrivateKey != "" {
			return integrity.NotSupported("selecting a private key is not supported for gpg signing; the default signing identity is used")
		}
		if op == OperationVerify {
			return utils.ValidateOptionalFile("public keyring", c.PublicKey)
		}
	case SchemeSigstore:
		switch op {
		case OperationSign:
			if c.PrivateKey == "" {
				return integrity.Configuration("private_key is required for %s signing", c.Scheme)
			}
		case OperationVerify:
			if c.PublicKey == "" {
				return integrity.Configuration("public_key is required for %s verification", c.Scheme)
			}
			if strings.Contains(c.PublicKey, "://") {
				// KMS reference, resolved by cosign
				return nil
			}
			if _, err := LoadPublicKey(c.PublicKey); err != nil {
				return err
			}
		}
	case SchemeSigstoreKeyless:
		if op == OperationSign && c.PrivateKey != "" {
			return integrity.NotSupported("a private key cannot be used for %s signing", c.Scheme)
		}
		if op == OperationVerify && c.KeylessSignerID != "" {
			return ErrSignerIdentityUnsupported
		}
	default:
		return integrity.NotSupported("this signature type is not supported: %q", c.Scheme)
	}
	return nil
}
