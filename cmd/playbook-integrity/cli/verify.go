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
	"github.com/sigstore/playbook-integrity/pkg/tracing"
	"github.com/sigstore/playbook-integrity/pkg/verify"
)

// Verify creates the verify command.
func Verify() *cobra.Command {
	o := &options.VerifyOptions{}

	long := `Verify a signed playbook.

Checks, in order, that the files tracked under TARGET are exactly those
listed in sha256sum.txt, that every listed digest matches the file content,
and that the manifest signature is valid for the selected scheme. The first
failing check is reported.

In a git work tree the file set is the HEAD tree; tracked files deleted
but not yet committed are reported as removed.

For gpg, --public-key names a keyring to verify against instead of the
default one. For sigstore, --public-key is the cosign public key.
sigstore_keyless checks the certificate and transparency log entry but
cannot enforce a signer identity, so --keyless-signer-id is rejected.

With --action warn a failed verification is reported but the command exits
successfully.`

	cmd := &cobra.Command{
		Use:   "verify [OPTIONS] [TARGET]",
		Short: "Verify a signed playbook.",
		Long:  long,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, o, args)
		},
	}

	o.AddFlags(cmd)
	return cmd
}

func runVerify(cmd *cobra.Command, o *options.VerifyOptions, args []string) error {
	if err := o.ReportFlags.Validate(); err != nil {
		return &exitError{code: exitCodeFor(err), err: err}
	}
	w := cmd.OutOrStdout()
	logger := logging.ForComponent(ro.NewLogger(cmd.ErrOrStderr()), "cli")

	params, err := o.Params(cmd, args)
	if err != nil {
		return reject(w, o.Format, err)
	}
	resolved, err := params.Resolve(config.OperationVerify)
	if err != nil {
		return reject(w, o.Format, err)
	}
	scmType, err := o.SCMType()
	if err != nil {
		return reject(w, o.Format, err)
	}
	checker, err := o.CheckerKind()
	if err != nil {
		return reject(w, o.Format, err)
	}

	runner := newRunner(logger)
	verifier, err := verify.NewVerifier(resolved.Target, resolved.Scheme, verify.Options{
		Runner:      runner,
		Logger:      logger,
		SCM:         scmType,
		Checker:     checker,
		HashWorkers: o.HashWorkers,
		Toolchain:   newToolchain(runner, logger),
	})
	if err != nil {
		return reject(w, o.Format, err)
	}
	if o.Check {
		logger.Info("parameters are valid, not verifying %s", resolved.Target)
		return Report{Result: verify.Result{}}.Write(w, o.Format)
	}

	attrs := map[string]interface{}{
		"playbook_integrity.target":         resolved.Target,
		"playbook_integrity.signature_type": string(resolved.Scheme.Scheme),
		"playbook_integrity.scm":            string(scmType),
		"playbook_integrity.action":         string(resolved.Action),
	}
	var res verify.Result
	err = tracing.Run(cmd.Context(), "Verify", attrs, func(ctx context.Context) error {
		ctx, cancel := withTimeout(ctx)
		defer cancel()
		var err error
		res, err = verifier.Verify(ctx)
		return err
	})

	rep := Report{Failed: res.Failed, Stage: string(res.Stage), Detail: res.Detail, Result: res}
	if werr := rep.Write(w, o.Format); werr != nil {
		return werr
	}
	if err == nil {
		return nil
	}
	switch resolved.Action {
	case config.ActionWarn:
		logger.Warn("verification of %s failed: %v", resolved.Target, err)
		return nil
	default:
		return &exitError{code: ExitFailed, err: err}
	}
}
