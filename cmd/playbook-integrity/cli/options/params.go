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
	"github.com/spf13/cobra"

	"github.com/sigstore/playbook-integrity/pkg/config"
)

// SignOptions holds the flags of the sign command.
type SignOptions struct {
	TargetFlags
	SchemeFlags
	EngineFlags
	ReportFlags
	KeylessFlags
}

// AddFlags registers every sign flag.
func (o *SignOptions) AddFlags(cmd *cobra.Command) {
	AddAllFlags(cmd, &o.TargetFlags, &o.SchemeFlags, &o.EngineFlags, &o.ReportFlags, &o.KeylessFlags)
}

// Params merges the parameter document, explicit flags and the positional
// target, in increasing order of precedence.
func (o *SignOptions) Params(cmd *cobra.Command, args []string) (*config.Params, error) {
	return mergeParams(cmd, args, &o.TargetFlags, &o.SchemeFlags, "")
}

// VerifyOptions holds the flags of the verify command.
type VerifyOptions struct {
	TargetFlags
	SchemeFlags
	EngineFlags
	ReportFlags
	// Action is "fail" or "warn".
	Action string
}

// AddFlags registers every verify flag.
func (o *VerifyOptions) AddFlags(cmd *cobra.Command) {
	AddAllFlags(cmd, &o.TargetFlags, &o.SchemeFlags, &o.EngineFlags, &o.ReportFlags)
	cmd.Flags().StringVar(&o.Action, "action", string(config.ActionFail),
		"On verification failure: fail exits non-zero, warn only reports.")
}

// Params merges the parameter document, explicit flags and the positional
// target, in increasing order of precedence.
func (o *VerifyOptions) Params(cmd *cobra.Command, args []string) (*config.Params, error) {
	return mergeParams(cmd, args, &o.TargetFlags, &o.SchemeFlags, o.Action)
}

func mergeParams(cmd *cobra.Command, args []string, t *TargetFlags, s *SchemeFlags, action string) (*config.Params, error) {
	p := &config.Params{}
	if t.ParamsFile != "" {
		loaded, err := config.LoadParams(t.ParamsFile)
		if err != nil {
			return nil, err
		}
		p = loaded
	}

	// without a document every flag applies, defaults included
	set := func(flag string, dst *string, v string) {
		if t.ParamsFile == "" || cmd.Flags().Changed(flag) {
			*dst = v
		}
	}
	set("type", &p.Type, t.Type)
	set("target", &p.Target, t.Target)
	set("signature-type", &p.SignatureType, s.SignatureType)
	set("private-key", &p.PrivateKey, s.PrivateKey)
	set("public-key", &p.PublicKey, s.PublicKey)
	set("keyless-signer-id", &p.KeylessSignerID, s.KeylessSignerID)
	if cmd.Flags().Lookup("action") != nil {
		set("action", &p.Action, action)
	}

	if len(args) > 0 {
		p.Target = args[0]
	}
	return p, nil
}
