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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sigstore/playbook-integrity/cmd/playbook-integrity/cli/options"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/logging"
	"github.com/sigstore/playbook-integrity/pkg/manifest"
	"github.com/sigstore/playbook-integrity/pkg/tracing"
	"github.com/sigstore/playbook-integrity/pkg/utils"
)

// Manifest creates the manifest command group, which runs the unsigned
// stages on their own.
func Manifest() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Generate and check sha256sum.txt without signatures.",
	}
	cmd.AddCommand(manifestGenerate())
	cmd.AddCommand(manifestDrift())
	cmd.AddCommand(manifestCheck())
	return cmd
}

type manifestStage func(ctx context.Context, e *manifest.Engine, root string) (manifest.Report, error)

func manifestCommand(use, short, long string, changes bool, o *options.ManifestOptions, stage manifestStage) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return &exitError{code: exitCodeFor(err), err: err}
			}
			w := cmd.OutOrStdout()
			logger := logging.ForComponent(ro.NewLogger(cmd.ErrOrStderr()), "cli")

			root, err := targetPath(args[0])
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
			engine := manifest.NewEngine(manifest.Options{
				Runner:      newRunner(logger),
				Logger:      logger,
				SCM:         scmType,
				Checker:     checker,
				HashWorkers: o.HashWorkers,
			})

			var rep manifest.Report
			attrs := map[string]interface{}{"playbook_integrity.target": root}
			err = tracing.Run(cmd.Context(), "Manifest", attrs, func(ctx context.Context) error {
				ctx, cancel := withTimeout(ctx)
				defer cancel()
				var err error
				rep, err = stage(ctx, engine, root)
				return err
			})

			out := Report{Changed: changes && err == nil}
			if err != nil {
				out.Failed = true
				out.Detail = rep.Stderr
				if out.Detail == "" {
					out.Detail = err.Error() + "\n"
				}
			}
			out.Result = manifestResult{Failed: out.Failed, Detail: out.Detail, DigestResult: &rep}
			if werr := out.Write(w, o.Format); werr != nil {
				return werr
			}
			if err != nil {
				return &exitError{code: exitCodeFor(err), err: err}
			}
			return nil
		},
	}
	o.AddFlags(cmd)
	return cmd
}

func manifestGenerate() *cobra.Command {
	o := &options.ManifestOptions{}
	var output string
	cmd := manifestCommand("generate [OPTIONS] TARGET", "Write sha256sum.txt for a playbook.",
		`Write the digest of every tracked file under TARGET to sha256sum.txt,
or to the file given via --output.`,
		true, o,
		func(ctx context.Context, e *manifest.Engine, root string) (manifest.Report, error) {
			return e.Generate(ctx, root, output)
		})
	cmd.Flags().StringVar(&output, "output", "", "Write the manifest here instead of TARGET/sha256sum.txt.")
	return cmd
}

func manifestDrift() *cobra.Command {
	o := &options.ManifestOptions{}
	return manifestCommand("drift [OPTIONS] TARGET", "Compare tracked files with sha256sum.txt.",
		`Report files that are tracked under TARGET but missing from
sha256sum.txt, and files listed in sha256sum.txt that are no longer
tracked. The manifest itself is not modified.`,
		false, o,
		func(ctx context.Context, e *manifest.Engine, root string) (manifest.Report, error) {
			return e.DetectDrift(ctx, root)
		})
}

func manifestCheck() *cobra.Command {
	o := &options.ManifestOptions{}
	return manifestCommand("check [OPTIONS] TARGET", "Check file digests against sha256sum.txt.",
		`Recompute the digest of every file listed in sha256sum.txt and report
the files that are missing or whose content changed.`,
		false, o,
		func(ctx context.Context, e *manifest.Engine, root string) (manifest.Report, error) {
			return e.VerifyDigests(ctx, root)
		})
}

func targetPath(arg string) (string, error) {
	expanded, err := utils.ExpandHome(arg)
	if err != nil {
		return "", integrity.New(integrity.ErrTypeConfiguration, "expanding target", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", integrity.New(integrity.ErrTypeConfiguration, "resolving target", err)
	}
	return abs, nil
}
