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
	"context"
	"path/filepath"

	"github.com/sigstore/playbook-integrity/pkg/command"
	"github.com/sigstore/playbook-integrity/pkg/integrity"
	"github.com/sigstore/playbook-integrity/pkg/utils"
)

// DetectDrift regenerates the manifest of root into a scratch file and
// compares its path set with the persisted manifest's. Renames show up as
// one removal plus one addition. Content changes are not drift.
//
// On drift the returned error is an *integrity.DriftError and the report
// carries the same path lists.
func (e *Engine) DetectDrift(ctx context.Context, root string) (Report, error) {
	if err := utils.ValidateFolderExists("target directory", root); err != nil {
		return failedReport(err), err
	}
	signed, err := ParseFile(filepath.Join(root, FileName))
	if err != nil {
		return failedReport(err), err
	}

	scratch := e.scratch
	if scratch == nil {
		scratch, err = utils.NewScratchDir("drift")
		if err != nil {
			return failedReport(err), err
		}
		defer scratch.Remove()
	}
	currentPath := scratch.Join(FileName)
	if rep, err := e.Generate(ctx, root, currentPath); err != nil {
		return rep, err
	}
	current, err := ParseFile(currentPath)
	if err != nil {
		return failedReport(err), err
	}

	diff := ComputeDiff(current, signed)
	if diff.IsEmpty() {
		e.logger.Debug("no drift in %s (%d files)", root, current.Len())
		return Report{}, nil
	}

	e.logger.Warn("drift detected in %s: %s", root, diff)
	driftErr := &integrity.DriftError{
		AddedFiles:   diff.Added,
		RemovedFiles: diff.Removed,
		Diff:         diff.Unified(current, signed),
	}
	return Report{
		Result:       command.Result{ReturnCode: 1, Stderr: driftErr.Diff},
		AddedFiles:   diff.Added,
		RemovedFiles: diff.Removed,
	}, driftErr
}
