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


package options

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigstore/playbook-integrity/pkg/config"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/manifest"
	"github.com/sigstore/playbook-integrity/pkg/scm"
)

// TargetFlags select the playbook to operate on.
type TargetFlags struct {
	// Type is the resource type. Only "playbook" is supported.
	Type string
	// Target is the playbook directory. A positional argument takes
	// precedence.
	Target string
	// ParamsFile is a YAML or JSON parameter document. Flags given
	// explicitly override its values.
	ParamsFile string
}

// AddFlags adds target flags to the cobra command.
func (o *TargetFlags) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Type, "type", string(config.ResourceTypePlaybook), "Type of resource to operate on.")
	cmd.Flags().StringVar(&o.Target, "target", "", "Path to the playbook directory.")
	_ = cmd.MarkFlagDirname("target")
	cmd.Flags().StringVar(&o.ParamsFile, "params", "", "Read parameters from a YAML or JSON document.")
	_ = cmd.MarkFlagFilename("params", "yaml", "yml", "json")
}

// SchemeFlags select the signature scheme and its key material.
type SchemeFlags struct {
	SignatureType   string // --signature-type
	PrivateKey      string // --private-key
	PublicKey       string // --public-key
	KeylessSignerID string // --keyless-signer-id
}

// AddFlags adds signature scheme flags to the cobra command.
func (o *SchemeFlags) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.SignatureType, "signature-type", string(config.DefaultScheme),
		fmt.Sprintf("Signature scheme, one of %v.", config.Schemes))
	cmd.Flags().StringVar(&o.PrivateKey, "private-key", "", "Private key reference for sigstore signing.")
	cmd.Flags().StringVar(&o.PublicKey, "public-key", "", "GPG keyring for gpg, or cosign public key for sigstore verification.")
	cmd.Flags().StringVar(&o.KeylessSignerID, "keyless-signer-id", "", "OIDC identity token for sigstore_keyless signing. Not accepted by verify.")
}

// EngineFlags tune how the manifest is produced and checked.
type EngineFlags struct {
	SCM         string // --scm
	Checker     string // --checker
	HashWorkers int    // --hash-workers
}

// AddFlags adds manifest engine flags to the cobra command.
func (o *EngineFlags) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.SCM, "scm", "", fmt.Sprintf("File set backend, one of %v. Detected when empty.", scm.Types()))
	cmd.Flags().StringVar(&o.Checker, "checker", string(manifest.CheckerAuto), "Digest checker: auto, tool or native.")
	cmd.Flags().IntVar(&o.HashWorkers, "hash-workers", 0, "Hash files concurrently with this many workers.")
}

// SCMType returns the selected backend, or the empty type for detection.
func (o *EngineFlags) SCMType() (scm.Type, error) {
	if o.SCM == "" {
		return "", nil
	}
	for _, t := range scm.Types() {
		if string(t) == o.SCM {
			return t, nil
		}
	}
	return "", integrity.NotSupported("unknown --scm %q, expected one of %v", o.SCM, scm.Types())
}

// CheckerKind returns the selected digest checker.
func (o *EngineFlags) CheckerKind() (manifest.CheckerKind, error) {
	return manifest.ParseCheckerKind(o.Checker)
}

// ReportFlags control how the operation result is presented.
type ReportFlags struct {
	// Format is "text" or "json".
	Format string
	// Check validates the configuration and reports without running
	// anything.
	Check bool
}

// Report formats.
const (
	ReportText = "text"
	ReportJSON = "json"
)

// AddFlags adds report flags to the cobra command.
func (o *ReportFlags) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Format, "report", ReportText, "Result report format (text, json).")
	cmd.Flags().BoolVar(&o.Check, "check", false, "Validate parameters only; nothing is executed or written.")
}

// Validate rejects unknown report formats.
func (o *ReportFlags) Validate() error {
	switch o.Format {
	case ReportText, ReportJSON:
		return nil
	default:
		return integrity.Configuration("unknown --report %q, expected %q or %q", o.Format, ReportText, ReportJSON)
	}
}
