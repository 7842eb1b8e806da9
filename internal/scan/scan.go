// Package scan discovers input files for the warehouse pipeline.
//
// The pipeline consumes directory trees of newline-delimited JSON files. This
// package walks a tree once, up front, and hands the driver a stable list of
// absolute paths so a run over a fixed filesystem state is reproducible.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ErrPathNotFound is returned when the given root directory does not exist.
// The driver treats this as fatal to the whole run, not a per-file failure.
var ErrPathNotFound = errors.New("input path not found")

// FindFiles recursively discovers files with the given extension under root
// and returns their absolute paths sorted lexicographically.
//
// The extension must include the leading dot (e.g. ".json") and is matched
// case-sensitively. An existing root containing zero matching files is valid
// and yields an empty slice with a nil error; a missing root yields
// ErrPathNotFound.
func FindFiles(root, ext string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, root)
		}

		return nil, fmt.Errorf("failed to stat input path %s: %w", root, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrPathNotFound, root)
	}

	var files []string

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() || filepath.Ext(path) != ext {
			return nil
		}

		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			return absErr
		}

		files = append(files, abs)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk input path %s: %w", root, err)
	}

	// WalkDir visits entries in lexical order per directory, but sorting the
	// full absolute paths keeps the contract independent of traversal details.
	sort.Strings(files)

	return files, nil
}
