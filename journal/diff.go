package journal

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/tessellate-ai/loom"
)

// Diff renders a snapshot as a unified diff of its before and after
// content. Missing sides render as empty, so creates and deletes come out
// as pure additions and removals.
func Diff(snap *loom.Snapshot) (string, error) {
	var before, after string
	if snap.Before != nil {
		before = *snap.Before
	}
	if snap.After != nil {
		after = *snap.After
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: fmt.Sprintf("a/%s", snap.FilePath),
		ToFile:   fmt.Sprintf("b/%s", snap.FilePath),
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", fmt.Errorf("failed to render diff: %w", err)
	}
	return text, nil
}

// DiffAll renders the unified diffs of every snapshot in order, separated by
// blank lines. Snapshots with identical before and after content contribute
// nothing.
func DiffAll(snaps []*loom.Snapshot) (string, error) {
	var parts []string
	for _, snap := range snaps {
		text, err := Diff(snap)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}
