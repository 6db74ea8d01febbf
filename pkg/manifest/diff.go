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

package manifest

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff is the membership difference between a signed and a current
// manifest. Content is not compared.
type Diff struct {
	// Added contains paths present now but not in the signed manifest.
	Added []string
	// Removed contains paths in the signed manifest that are gone now.
	Removed []string
}

// IsEmpty reports whether both manifests list the same set of paths.
func (d *Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// ComputeDiff compares the path sets of two manifests. Duplicate paths
// collapse and order is ignored; both result slices are sorted, and nil when
// empty.
func ComputeDiff(current, signed *Manifest) *Diff {
	currentSet := current.PathSet()
	signedSet := signed.PathSet()

	diff := &Diff{}
	for p := range currentSet {
		if _, ok := signedSet[p]; !ok {
			diff.Added = append(diff.Added, p)
		}
	}
	sort.Strings(diff.Added)

	for p := range signedSet {
		if _, ok := currentSet[p]; !ok {
			diff.Removed = append(diff.Removed, p)
		}
	}
	sort.Strings(diff.Removed)

	return diff
}

// Unified renders the sorted path lists of both manifests as a unified diff.
func (d *Diff) Unified(current, signed *Manifest) string {
	ud := difflib.UnifiedDiff{
		A:        sortedLines(signed.PathSet()),
		B:        sortedLines(current.PathSet()),
		FromFile: "signed",
		ToFile:   "current",
		Context:  1,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return ""
	}
	return text
}

func sortedLines(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p+"\n")
	}
	sort.Strings(out)
	return out
}

// String summarizes the diff for logs.
func (d *Diff) String() string {
	var parts []string
	if len(d.Added) > 0 {
		parts = append(parts, "added: "+strings.Join(d.Added, ", "))
	}
	if len(d.Removed) > 0 {
		parts = append(parts, "removed: "+strings.Join(d.Removed, ", "))
	}
	if len(parts) == 0 {
		return "no drift"
	}
	return strings.Join(parts, "; ")
}
