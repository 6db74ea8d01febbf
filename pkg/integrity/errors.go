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

// Package integrity defines the error taxonomy shared by the manifest,
// signature, signing and verification packages.
//
// Every failure surfaced by an integrity operation carries an ErrorType so
// that callers (the CLI, or a host wrapper embedding the library) can decide
// how to report it without string matching.
package integrity

import (
	"errors"
	"fmt"
)

// ErrorType categorizes integrity failures.
type ErrorType int

const (
	// ErrTypeUnknown indicates an unclassified error.
	ErrTypeUnknown ErrorType = iota

	// ErrTypeNotSupported indicates a requested option is not supported by
	// the selected signature scheme or resource type.
	ErrTypeNotSupported

	// ErrTypeNotFound indicates a required directory or file is missing.
	ErrTypeNotFound

	// ErrTypeBackend indicates an external tool (SCM, checksum, signing)
	// exited with a non-zero status.
	ErrTypeBackend

	// ErrTypeDrift indicates the tracked file set differs from the manifest.
	ErrTypeDrift

	// ErrTypeDigestMismatch indicates at least one file's content no longer
	// matches its recorded digest.
	ErrTypeDigestMismatch

	// ErrTypeToolAcquisition indicates the signing tool could not be fetched.
	ErrTypeToolAcquisition

	// ErrTypeTimeout indicates an external command exceeded its deadline.
	ErrTypeTimeout

	// ErrTypeIO indicates a local read or write failed.
	ErrTypeIO

	// ErrTypeConfiguration indicates invalid configuration. These are raised
	// before any external process is started.
	ErrTypeConfiguration
)

func (e ErrorType) String() string {
	switch e {
	case ErrTypeNotSupported:
		return "NotSupported"
	case ErrTypeNotFound:
		return "NotFound"
	case ErrTypeBackend:
		return "BackendError"
	case ErrTypeDrift:
		return "Drift"
	case ErrTypeDigestMismatch:
		return "DigestMismatch"
	case ErrTypeToolAcquisition:
		return "ToolAcquisitionError"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeIO:
		return "IOError"
	case ErrTypeConfiguration:
		return "ConfigurationError"
	default:
		return "UnknownError"
	}
}

// Error is the structured error returned by integrity operations.
type Error struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType

	// Path is the file or directory related to the error (optional).
	Path string

	// Message is a human-readable description of what went wrong.
	Message string

	// Detail holds diagnostic text captured from an external tool, such as
	// the non-OK lines of a checksum report or a signing tool's stderr.
	Detail string

	// Cause is the underlying error (optional).
	Cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path: %s)", msg, e.Path)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Kind returns the error's category.
func (e *Error) Kind() ErrorType {
	return e.Type
}

// New creates an Error without a path.
func New(errType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// NewWithPath creates an Error bound to a path.
func NewWithPath(errType ErrorType, path, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Path:    path,
		Message: message,
		Cause:   cause,
	}
}

// NewWithDetail creates an Error carrying captured tool output.
func NewWithDetail(errType ErrorType, message, detail string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Detail:  detail,
	}
}

// NotSupported reports an unsupported option.
func NotSupported(format string, args ...any) *Error {
	return New(ErrTypeNotSupported, fmt.Sprintf(format, args...), nil)
}

// NotFound reports a missing directory or file.
func NotFound(path, message string) *Error {
	return NewWithPath(ErrTypeNotFound, path, message, nil)
}

// Configuration reports invalid configuration.
func Configuration(format string, args ...any) *Error {
	return New(ErrTypeConfiguration, fmt.Sprintf(format, args...), nil)
}

// DriftError is returned when the tracked file set of a directory differs
// from the file set recorded in its manifest. A side with no paths is nil.
type DriftError struct {
	AddedFiles   []string `json:"added_files"`
	RemovedFiles []string `json:"removed_files"`

	// Diff is a unified diff of the recorded and current path lists.
	Diff string `json:"-"`
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("%s: tracked files differ from manifest (added: %d, removed: %d)",
		ErrTypeDrift, len(e.AddedFiles), len(e.RemovedFiles))
}

// Kind returns ErrTypeDrift.
func (e *DriftError) Kind() ErrorType {
	return ErrTypeDrift
}

type kinded interface {
	Kind() ErrorType
}

// TypeOf returns the category of err, or ErrTypeUnknown when err does not
// wrap an integrity error.
func TypeOf(err error) ErrorType {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ErrTypeUnknown
}

// IsType reports whether err wraps an integrity error of the given type.
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}
	return TypeOf(err) == errType
}

// As finds the first *Error in err's chain.
func As(err error, target **Error) bool {
	if err == nil {
		return false
	}
	return errors.As(err, target)
}

// DetailOf returns the captured tool output of err, if any.
func DetailOf(err error) string {
	var ie *Error
	if As(err, &ie) {
		return ie.Detail
	}
	return ""
}
