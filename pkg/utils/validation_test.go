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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigstore/playbook-integrity/pkg/integrity"
)

func TestValidateFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "cosign.pub")
	require.NoError(t, os.WriteFile(file, []byte("key"), 0o644))

	tests := []struct {
		name string
		path string
		want integrity.ErrorType
	}{
		{name: "valid file", path: file, want: integrity.ErrTypeUnknown},
		{name: "empty path", path: "", want: integrity.ErrTypeConfiguration},
		{name: "missing file", path: filepath.Join(dir, "missing.pub"), want: integrity.ErrTypeNotFound},
		{name: "directory instead of file", path: dir, want: integrity.ErrTypeConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFileExists("public key", tt.path)
			if tt.want == integrity.ErrTypeUnknown {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.want, integrity.TypeOf(err))
		})
	}
}

func TestValidateFolderExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0o644))

	assert.NoError(t, ValidateFolderExists("target", dir))
	assert.True(t, integrity.IsType(ValidateFolderExists("target", file), integrity.ErrTypeConfiguration))

	err := ValidateFolderExists("target directory", filepath.Join(dir, "nope"))
	assert.True(t, integrity.IsType(err, integrity.ErrTypeNotFound))
	assert.Contains(t, err.Error(), "target directory does not exist")
}

func TestValidateOptionalFile(t *testing.T) {
	assert.NoError(t, ValidateOptionalFile("keyring", ""))
	assert.True(t, integrity.IsType(ValidateOptionalFile("keyring", "/nonexistent.gpg"), integrity.ErrTypeNotFound))
}
