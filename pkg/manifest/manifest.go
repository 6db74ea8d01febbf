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

// Package manifest generates, parses and checks the digest manifest of a
// playbook tree.
//
// The manifest is a checksum file in the format of GNU coreutils sha256sum:
// one line per file, "<64 hex digits><two spaces><relative path>\n", in the
// order the file-set resolver emitted the paths. Paths containing a newline,
// carriage return or backslash are escaped the way sha256sum escapes them
// (a leading backslash on the line).
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/sigstore/playbook-integrity/pkg/integrity"
)

// FileName is the manifest's name inside the target directory.
const FileName = "sha256sum.txt"

// ArtifactNames are the manifest and every signature file a scheme may
// place next to it. None of them is ever listed in a manifest.
var ArtifactNames = []string{FileName, FileName + ".gpg", FileName + ".sig"}

// Entry binds a relative path to the SHA-256 digest of its content.
type Entry struct {
	Path   string
	Digest digest.Digest
}

// Manifest is an ordered list of entries.
type Manifest struct {
	entries []Entry
}

// New returns a manifest with the given entries in order.
func New(entries []Entry) *Manifest {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Manifest{entries: cp}
}

// Entries returns the entries in manifest order.
func (m *Manifest) Entries() []Entry {
	cp := make([]Entry, len(m.entries))
	copy(cp, m.entries)
	return cp
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.entries)
}

// Paths returns the entry paths in manifest order.
func (m *Manifest) Paths() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Path
	}
	return out
}

// PathSet returns the set of entry paths.
func (m *Manifest) PathSet() map[string]struct{} {
	set := make(map[string]struct{}, len(m.entries))
	for _, e := range m.entries {
		set[e.Path] = struct{}{}
	}
	return set
}

// Lookup returns the entry for path.
func (m *Manifest) Lookup(path string) (Entry, bool) {
	for _, e := range m.entries {
		if e.Path == path {
			return e, true
		}
	}
	return Entry{}, false
}

// WriteTo writes the manifest in checksum-file format.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, e := range m.entries {
		buf.WriteString(formatLine(e))
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// Bytes returns the serialized manifest.
func (m *Manifest) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = m.WriteTo(&buf)
	return buf.Bytes()
}

// WriteFile replaces path with the serialized manifest. The content is
// written to a sibling temporary file first and renamed into place.
func (m *Manifest) WriteFile(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return integrity.NewWithPath(integrity.ErrTypeIO, path, "creating manifest", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := m.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		return integrity.NewWithPath(integrity.ErrTypeIO, path, "writing manifest", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return integrity.NewWithPath(integrity.ErrTypeIO, path, "writing manifest", err)
	}
	if err := tmp.Close(); err != nil {
		return integrity.NewWithPath(integrity.ErrTypeIO, path, "writing manifest", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return integrity.NewWithPath(integrity.ErrTypeIO, path, "replacing manifest", err)
	}
	return nil
}

func formatLine(e Entry) string {
	name := e.Path
	prefix := ""
	if strings.ContainsAny(name, "\\\n\r") {
		prefix = "\\"
		name = escaper.Replace(name)
	}
	return fmt.Sprintf("%s%s  %s\n", prefix, e.Digest.Encoded(), name)
}

var (
	escaper   = strings.NewReplacer("\\", "\\\\", "\n", "\\n", "\r", "\\r")
	unescaper = strings.NewReplacer("\\\\", "\\", "\\n", "\n", "\\r", "\r")
)

// Parse reads a checksum file. Both the text ("  ") and binary (" *")
// separators written by sha256sum are accepted. Malformed lines are
// reported with their line number.
func Parse(r io.Reader) (*Manifest, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, integrity.New(integrity.ErrTypeIO,
				fmt.Sprintf("malformed manifest line %d", lineNo), err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, integrity.New(integrity.ErrTypeIO, "reading manifest", err)
	}
	return &Manifest{entries: entries}, nil
}

// ParseFile reads the manifest at path.
func ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, integrity.NotFound(path, "manifest does not exist")
		}
		return nil, integrity.NewWithPath(integrity.ErrTypeIO, path, "opening manifest", err)
	}
	defer f.Close()
	return Parse(f)
}

func parseLine(line string) (Entry, error) {
	escaped := strings.HasPrefix(line, "\\")
	if escaped {
		line = line[1:]
	}
	const hexLen = 64
	if len(line) < hexLen+3 {
		return Entry{}, errors.New("line too short")
	}
	hex, sep, name := line[:hexLen], line[hexLen:hexLen+2], line[hexLen+2:]
	if sep != "  " && sep != " *" {
		return Entry{}, fmt.Errorf("unexpected separator %q", sep)
	}
	d, err := digest.Parse(string(digest.SHA256) + ":" + strings.ToLower(hex))
	if err != nil {
		return Entry{}, err
	}
	if escaped {
		name = unescaper.Replace(name)
	}
	return Entry{Path: name, Digest: d}, nil
}
