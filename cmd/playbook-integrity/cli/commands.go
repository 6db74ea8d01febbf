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


// Package cli implements the playbook-integrity command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	cobracompletefig "github.com/withfig/autocomplete-tools/integrations/cobra"
	"sigs.k8s.io/release-utils/version"

	"github.com/sigstore/playbook-integrity/cmd/playbook-integrity/cli/options"
	"github.com/sigstore/playbook-integrity/pkg/command"
	"github.com/sigstore/playbook-integrity/pkg/logging"
	"github.com/sigstore/playbook-integrity/pkg/signature"
)

var (
	ro = &options.RootOptions{}

	newRunner = func(logger logging.Logger) command.Runner {
		return command.NewExecRunner(logger)
	}
	newToolchain = func(runner command.Runner, logger logging.Logger) *signature.Toolchain {
		return signature.NewToolchain(signature.ToolchainOptions{Runner: runner, Logger: logger})
	}
)

// New returns the root command.
func New() *cobra.Command {
	ro = &options.RootOptions{}
	var out *os.File

	cmd := &cobra.Command{
		Use:               "playbook-integrity",
		Short:             "Playbook signing and verification.",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if ro.OutputFile != "" {
				var err error
				out, err = os.Create(ro.OutputFile)
				if err != nil {
					return fmt.Errorf("error creating output file %s: %w", ro.OutputFile, err)
				}
				cmd.SetOut(out)
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if out != nil {
				_ = out.Close()
			}
		},
	}
	ro.AddFlags(cmd)

	cmd.AddCommand(Sign())
	cmd.AddCommand(Verify())
	cmd.AddCommand(Manifest())
	cmd.AddCommand(version.WithFont("starwars"))
	cmd.AddCommand(cobracompletefig.CreateCompletionSpecCommand())
	return cmd
}
