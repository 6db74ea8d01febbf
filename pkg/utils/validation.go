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


package utils

import (
	"errors"
	"io/fs"
	"os"

	"github.com/sigstore/playbook-integrity/pkg/integrity"
)

// checkPath stats a named path. A missing path is NotFound; an empty path
// or one of the wrong kind is a Configuration error.
func checkPath(fieldName, path string, wantDir bool) error {
	if path == "" {
		return integrity.Configuration("%s is required", fieldName)
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return integrity.NotFound(path, fieldName+" does not exist")
	case err != nil:
		return integrity.NewWithPath(integrity.ErrTypeIO, path, "checking "+fieldName, err)
	case wantDir && !info.IsDir():
		return integrity.Configuration("%s %q is a file, expected directory", fieldName, path)
	case !wantDir && info.IsDir():
		return integrity.Configuration("%s %q is a directory, expected file", fieldName, path)
	}
	return nil
}

// ValidateFileExists checks that path is an existing file.
func ValidateFileExists(fieldName, path string) error {
	return checkPath(fieldName, path, false)
}

// ValidateFolderExists checks that path is an existing directory.
func ValidateFolderExists(fieldName, path string) error {
	return checkPath(fieldName, path, true)
}

// ValidateOptionalFile is ValidateFileExists for paths that may be empty.
func ValidateOptionalFile(fieldName, path string) error {
	if path == "" {
		return nil
	}
	return ValidateFileExists(fieldName, path)
}
