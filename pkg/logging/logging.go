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


// Package logging provides the leveled, structured logger used across
// playbook-integrity. Log output goes to stderr by default so that command
// reports written to stdout stay machine readable.
package logging

import (
	"io"
	"strings"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	// LevelSilent disables all logging output.
	LevelSilent
)

var levelNames = [...]string{"debug", "info", "warn", "error", "silent"}

func (l LogLevel) String() string {
	if l < LevelDebug || l > LevelSilent {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLogLevel parses a --log-level value. Unrecognized values select
// LevelInfo.
func ParseLogLevel(s string) LogLevel {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "warning":
		return LevelWarn
	case "none", "off":
		return LevelSilent
	default:
		for i, name := range levelNames {
			if v == name {
				return LogLevel(i)
			}
		}
		return LevelInfo
	}
}

// LogFormat represents the output format for log messages.
type LogFormat int

const (
	FormatText LogFormat = iota
	FormatJSON
)

func (f LogFormat) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseLogFormat parses a --log-format value. Anything but "json" selects
// FormatText.
func ParseLogFormat(s string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Logger is the logging interface every component accepts in its options.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})

	// WithField returns a Logger that adds key to every entry.
	WithField(key string, value interface{}) Logger
	// WithFields returns a Logger that adds fields to every entry.
	WithFields(fields map[string]interface{}) Logger
}

// ComponentField names the pipeline component that emitted an entry. Text
// output renders it as a prefix.
const ComponentField = "component"

// Default returns an info-level text logger on stderr.
func Default() Logger {
	return New(Options{Level: LevelInfo})
}

// Discard returns a Logger that drops every message.
func Discard() Logger {
	return New(Options{Level: LevelSilent, Output: io.Discard})
}

// ForComponent returns l, or a default logger, tagged with component.
func ForComponent(l Logger, component string) Logger {
	return EnsureLogger(l).WithField(ComponentField, component)
}

// EnsureLogger returns l if non-nil, otherwise a default logger.
func EnsureLogger(l Logger) Logger {
	if l == nil {
		return Default()
	}
	return l
}
