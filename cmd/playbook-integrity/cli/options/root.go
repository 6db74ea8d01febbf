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


// Package options defines the command-line options and flags of the
// playbook-integrity CLI.
package options

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigstore/playbook-integrity/pkg/logging"
)

// RootOptions defines flags available to every subcommand.
type RootOptions struct {
	// OutputFile redirects command output from stdout to a file.
	OutputFile string
	// LogLevel sets the minimum log level (debug, info, warn, error, silent).
	LogLevel string
	// LogFormat sets the log output format (text, json).
	LogFormat string
	// Timeout bounds the whole command, tool invocations included.
	Timeout time.Duration
}

// DefaultTimeout specifies the default timeout duration for commands.
const DefaultTimeout = 10 * time.Minute

var logExts = []string{"log", "txt", "json"}

// FlagAdder is implemented by any flag group that can register itself to a
// cobra command.
type FlagAdder interface {
	AddFlags(cmd *cobra.Command)
}

var _ FlagAdder = (*RootOptions)(nil)

// AddFlags adds root-level flags as persistent flags of cmd.
func (o *RootOptions) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&o.OutputFile, "output-file", "",
		"write command output to a file")
	_ = cmd.MarkPersistentFlagFilename("output-file", logExts...)

	cmd.PersistentFlags().StringVar(&o.LogLevel, "log-level", "info",
		"set the minimum log level (debug, info, warn, error, silent)")

	cmd.PersistentFlags().StringVar(&o.LogFormat, "log-format", "text",
		"set the log output format (text, json)")

	cmd.PersistentFlags().DurationVarP(&o.Timeout, "timeout", "t", DefaultTimeout,
		"timeout for commands")
}

// GetLogLevel returns the effective log level.
func (o *RootOptions) GetLogLevel() logging.LogLevel {
	return logging.ParseLogLevel(o.LogLevel)
}

// NewLogger creates a logger writing to w.
func (o *RootOptions) NewLogger(w io.Writer) logging.Logger {
	return logging.New(logging.Options{
		Level:  o.GetLogLevel(),
		Format: logging.ParseLogFormat(o.LogFormat),
		Output: w,
	})
}

// AddAllFlags registers several flag groups at once.
func AddAllFlags(cmd *cobra.Command, groups ...FlagAdder) {
	for _, g := range groups {
		g.AddFlags(cmd)
	}
}
