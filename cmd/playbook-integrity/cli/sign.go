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


package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sigstore/playbook-integrity/cmd/playbook-integrity/cli/options"
	"github.com/sigstore/playbook-integrity/pkg/config"
	"github.com/sigstore/playbook-integrity/pkg/logging"
	"github.com/sigstore/playbook-integrity/pkg/signing"
	"github.com/sigstore/playbook-integrity/pkg/tracing"
)

// Sign creates the sign command.
func Sign() *cobra.Command {
	o := &options.SignOptions{}

	long := `Sign a playbook.

Writes sha256sum.txt at the root of TARGET, listing the digest of every
tracked file, and signs it. gpg writes sha256sum.txt.gpg with the default
signing identity. sigstore writes sha256sum.txt.sig with the key given via
--private-key. sigstore_keyless writes sha256sum.txt.sig with an OIDC
identity token taken from --keyless-signer-id, from SIGSTORE_ID_TOKEN,
from the GitHub Actions token endpoint when the job has id-token
permission, or, with --interactive, from a browser flow.

Any previous manifest and signature are replaced.`

	cmd := &cobra.Command{
		Use:   "sign [OPTIONS] [TARGET]",
		Short: "Sign a playbook.",
		Long:  long,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(cmd, o, args)
		},
	}

	o.AddFlags(cmd)
	return cmd
}

func runSign(cmd *cobra.Command, o *options.SignOptions, args []string) error {
	if err := o.ReportFlags.Validate(); err != nil {
		return &exitError{code: exitCodeFor(err), err: err}
	}
	w := cmd.OutOrStdout()
	logger := logging.ForComponent(ro.NewLogger(cmd.ErrOrStderr()), "cli")

	params, err := o.Params(cmd, args)
	if err != nil {
		return reject(w, o.Format, err)
	}
	resolved, err := params.Resolve(config.OperationSign)
	if err != nil {
		return reject(w, o.Format, err)
	}
	scmType, err := o.SCMType()
	if err != nil {
		return reject(w, o.Format, err)
	}

	runner := newRunner(logger)
	signer, err := signing.NewSigner(resolved.Target, resolved.Scheme, signing.Options{
		Runner:      runner,
		Logger:      logger,
		SCM:         scmType,
		HashWorkers: o.HashWorkers,
		Toolchain:   newToolchain(runner, logger),
		Tokens:      o.KeylessFlags.TokenSource(cmd.InOrStdin(), cmd.ErrOrStderr()),
	})
	if err != nil {
		return reject(w, o.Format, err)
	}
	if o.Check {
		logger.Info("parameters are valid, not signing %s", resolved.Target)
		return Report{Result: signing.Result{}}.Write(w, o.Format)
	}

	attrs := map[string]interface{}{
		"playbook_integrity.target":         resolved.Target,
		"playbook_integrity.signature_type": string(resolved.Scheme.Scheme),
		"playbook_integrity.scm":            string(scmType),
	}
	var res signing.Result
	err = tracing.Run(cmd.Context(), "Sign", attrs, func(ctx context.Context) error {
		ctx, cancel := withTimeout(ctx)
		defer cancel()
		var err error
		res, err = signer.Sign(ctx)
		return err
	})

	rep := Report{
		// the manifest is rewritten even when signing fails afterwards
		Changed: res.DigestResult != nil && res.DigestResult.Succeeded(),
		Failed:  res.Failed,
		Stage:   string(res.Stage),
		Detail:  res.Detail,
		Result:  res,
	}
	if werr := rep.Write(w, o.Format); werr != nil {
		return werr
	}
	if err != nil {
		return &exitError{code: ExitFailed, err: err}
	}
	return nil
}
