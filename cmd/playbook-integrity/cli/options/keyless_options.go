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
	"io"

	"github.com/spf13/cobra"

	"github.com/sigstore/playbook-integrity/pkg/signature"
)

// KeylessFlags configure how an identity token is obtained for keyless
// signing when --keyless-signer-id is not given.
type KeylessFlags struct {
	Interactive   bool   // --interactive
	OAuthForceOob bool   // --oauth-force-oob
	OIDCIssuer    string // --oidc-issuer
	ClientID      string // --client-id
	ClientSecret  string // --client-secret
}

// AddFlags adds keyless token flags to the cobra command.
func (o *KeylessFlags) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.Interactive, "interactive", false, "Run an OIDC flow when no identity token is available.")
	cmd.Flags().BoolVar(&o.OAuthForceOob, "oauth-force-oob", false, "Force an out-of-band OAuth flow and do not automatically start the default web browser.")
	cmd.Flags().StringVar(&o.OIDCIssuer, "oidc-issuer", signature.IssuerProdURL, "OIDC provider used for the interactive flow.")
	cmd.Flags().StringVar(&o.ClientID, "client-id", signature.DefaultClientID, "The custom OpenID Connect client ID to use during OAuth2.")
	cmd.Flags().StringVar(&o.ClientSecret, "client-secret", "", "The custom OpenID Connect client secret to use during OAuth2.")
}

// TokenSource builds the fallback identity token source.
func (o *KeylessFlags) TokenSource(in io.Reader, out io.Writer) *signature.OIDCTokenSource {
	return &signature.OIDCTokenSource{
		Issuer:       o.OIDCIssuer,
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		Interactive:  o.Interactive,
		ForceOOB:     o.OAuthForceOob,
		In:           in,
		Out:          out,
	}
}
