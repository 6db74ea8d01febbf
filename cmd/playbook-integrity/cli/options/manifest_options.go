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
)

// ManifestOptions holds the flags shared by the manifest subcommands.
type ManifestOptions struct {
	EngineFlags
	// Format is "text" or "json".
	Format string
}

// AddFlags registers the manifest flags.
func (o *ManifestOptions) AddFlags(cmd *cobra.Command) {
	o.EngineFlags.AddFlags(cmd)
	cmd.Flags().StringVar(&o.Format, "report", ReportText, "Result report format (text, json).")
}

// Validate rejects unknown report formats.
func (o *ManifestOptions) Validate() error {
	return (&ReportFlags{Format: o.Format}).Validate()
}
