// Package scan discovers markdown documents below a content root.
package scan

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// DocumentExt is the file extension recognized as a source document.
const DocumentExt = ".md"

// Documents returns a lazy sequence of document paths below root.
//
// Directories are visited breadth-first from an explicit queue; entries inside a
// directory are visited in lexical order, so the sequence is deterministic for an
// unchanged tree. Entries that cannot be read are skipped, as are broken symlinks.
// Symlinked directories are not descended. A missing root yields nothing.
// Each iteration rescans the filesystem.
func Documents(root string) iter.Seq[string] {
	docs := walk(root, os.ReadDir)
	return func(yield func(string) bool) {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			return
		}
		docs(yield)
	}
}

// walk traverses from root using readDir, which may return partial entries along
// with an error.
func walk(root string, readDir func(string) ([]fs.DirEntry, error)) iter.Seq[string] {
	return func(yield func(string) bool) {
		queue := []string{root}
		for len(queue) > 0 {
			dir := queue[0]
			queue = queue[1:]

			// On error ReadDir still returns the entries read before the failure.
			entries, _ := readDir(dir)
			for _, entry := range entries {
				path := filepath.Join(dir, entry.Name())
				isDir, isFile := classify(path, entry)
				if isDir {
					queue = append(queue, path)
					continue
				}
				if !isFile || !IsDocument(entry.Name()) {
					continue
				}
				if !yield(path) {
					return
				}
			}
		}
	}
}

// Collect drains Documents(root) into a slice.
func Collect(root string) []string {
	var out []string
	for path := range Documents(root) {
		out = append(out, path)
	}
	return out
}

// IsDocument reports whether name carries the document extension.
func IsDocument(name string) bool {
	return strings.HasSuffix(name, DocumentExt) && len(name) > len(DocumentExt)
}

// classify reports whether entry should be descended into or treated as a file.
// Symlinks are resolved; a symlink to a directory is neither.
func classify(path string, entry fs.DirEntry) (isDir, isFile bool) {
	mode := entry.Type()
	switch {
	case mode.IsDir():
		return true, false
	case mode.IsRegular():
		return false, true
	case mode&fs.ModeSymlink != 0:
		info, err := os.Stat(path)
		if err != nil {
			return false, false
		}
		return false, info.Mode().IsRegular()
	default:
		return false, false
	}
}
