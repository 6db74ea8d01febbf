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
	"strings"

	"github.com/sigstore/playbook-integrity/pkg/integrity"
)

// ResourceType identifies the kind of target being signed or verified.
type ResourceType string

const (
	// ResourceTypePlaybook is a version-controlled playbook directory.
	ResourceTypePlaybook ResourceType = "playbook"
)

// ResourceTypes lists every supported resource type.
var ResourceTypes = []ResourceType{ResourceTypePlaybook}

// ParseResourceType maps a configuration value to a ResourceType.
// Unknown values are rejected with a NotSupported error.
func ParseResourceType(s string) (ResourceType, error) {
	switch t := ResourceType(strings.TrimSpace(s)); t {
	case ResourceTypePlaybook:
		return t, nil
	default:
		return "", integrity.NotSupported("type must be one of %v, got %q", ResourceTypes, s)
	}
}

// Scheme identifies a signature scheme.
type Scheme string

const (
	// SchemeGPG signs with a detached GPG signature.
	SchemeGPG Scheme = "gpg"
	// SchemeSigstore signs with cosign and an explicit key pair.
	SchemeSigstore Scheme = "sigstore"
	// SchemeSigstoreKeyless signs with cosign and an OIDC identity token.
	SchemeSigstoreKeyless Scheme = "sigstore_keyless"
)

// DefaultScheme is used when no signature type is configured.
const DefaultScheme = SchemeGPG

// Schemes lists every supported signature scheme.
var Schemes = []Scheme{SchemeGPG, SchemeSigstore, SchemeSigstoreKeyless}

// ParseScheme maps a configuration value to a Scheme. An empty value selects
// DefaultScheme; unknown values are rejected with a NotSupported error.
func ParseScheme(s string) (Scheme, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return DefaultScheme, nil
	}
	switch sc := Scheme(v); sc {
	case SchemeGPG, SchemeSigstore, SchemeSigstoreKeyless:
		return sc, nil
	default:
		return "", integrity.NotSupported("this signature type is not supported: %q", s)
	}
}

// Keyless reports whether the scheme binds identity through a token instead
// of a key.
func (s Scheme) Keyless() bool {
	return s == SchemeSigstoreKeyless
}

// Action decides how a failed verification is reported to the caller.
type Action string

const (
	// ActionFail makes a failed verification a command failure.
	ActionFail Action = "fail"
	// ActionWarn reports the failure but exits successfully.
	ActionWarn Action = "warn"
)

// ParseAction maps a configuration value to an Action. Empty selects
// ActionFail.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.TrimSpace(s)); a {
	case "":
		return ActionFail, nil
	case ActionFail, ActionWarn:
		return a, nil
	default:
		return "", integrity.Configuration("action must be %q or %q, got %q", ActionFail, ActionWarn, s)
	}
}

// SchemeConfig is the immutable parameter bundle for one signature scheme.
type SchemeConfig struct {
	Scheme Scheme
	// PrivateKey is a key reference for signing. Only sigstore accepts one.
	PrivateKey string
	// PublicKey is a GPG keyring for gpg, or a cosign public key for
	// sigstore.
	PublicKey string
	// KeylessSignerID is the OIDC identity token used for keyless signing.
	// Keyless verification rejects it; see ErrSignerIdentityUnsupported.
	KeylessSignerID string
}
