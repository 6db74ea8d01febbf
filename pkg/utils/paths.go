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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sigstore/sigstore/pkg/cryptoutils"
)

// ExpandHome replaces a leading "~/" (or a lone "~") with the current
// user's home directory. Other paths are returned unchanged.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

// ScratchDir is a per-invocation working directory. Two ScratchDirs never
// share a path, so concurrent operations on one host do not collide.
type ScratchDir struct {
	Path string
}

// NewScratchDir creates a fresh directory under the system temp directory.
// The prefix names the owning operation.
func NewScratchDir(prefix string) (*ScratchDir, error) {
	id := cryptoutils.GenerateRandomURLSafeString(12)
	dir, err := os.MkdirTemp("", fmt.Sprintf("playbook-integrity-%s-%s-", prefix, id))
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	return &ScratchDir{Path: dir}, nil
}

// Join returns a path inside the scratch directory.
func (s *ScratchDir) Join(elem ...string) string {
	return filepath.Join(append([]string{s.Path}, elem...)...)
}

// Subdir creates (if needed) and returns a private subdirectory.
func (s *ScratchDir) Subdir(name string) (string, error) {
	p := s.Join(name)
	if err := os.MkdirAll(p, 0o700); err != nil {
		return "", fmt.Errorf("creating scratch subdirectory %s: %w", name, err)
	}
	return p, nil
}

// Remove deletes the scratch directory and everything in it.
func (s *ScratchDir) Remove() error {
	if s == nil || s.Path == "" {
		return nil
	}
	return os.RemoveAll(s.Path)
}

// MaskToken masks a sensitive token for logging, showing only the first and
// last 4 characters.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
