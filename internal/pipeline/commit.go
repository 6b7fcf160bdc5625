package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

// Merge-output handling: when the chain's stdout merges with its stdin file
// (`=`), writing straight back onto the file being read would corrupt it.
// Output is buffered through a uniquely named temporary file next to the
// source, and only committed over it once the chain's exit status is known.

// beginMergeOutput creates the buffer file for a merge-stdout chain, in the
// same directory as the source so the final rename stays on one filesystem.
func beginMergeOutput(source string) (*os.File, error) {
	f, err := os.CreateTemp(filepath.Dir(source), ".o-o-merge-*")
	if err != nil {
		return nil, fmt.Errorf("create merge buffer for %s: %w", source, err)
	}
	return f, nil
}

// ShouldCommit is the commit decision: buffered output replaces the source
// file only when the chain succeeded or the force flag overrides the
// failure. This is the one place an exit status gates a filesystem effect.
func ShouldCommit(status int, forceOverwrite bool) bool {
	return status == 0 || forceOverwrite
}

// finishMergeOutput applies the commit decision: an atomic rename of the
// buffer over the source, or removal of the buffer leaving the source
// untouched.
func finishMergeOutput(buffer, source string, commit bool) error {
	if !commit {
		if err := os.Remove(buffer); err != nil {
			return fmt.Errorf("discard merge buffer: %w", err)
		}
		return nil
	}
	if err := os.Rename(buffer, source); err != nil {
		return fmt.Errorf("replace %s with merge buffer: %w", source, err)
	}
	return nil
}
