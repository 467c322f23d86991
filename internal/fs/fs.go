// Package fs provides the filesystem abstraction used by the filesystem
// database backend.
//
// The main types are:
//   - [FS]: interface for the filesystem operations the backend needs
//   - [Real]: production implementation using the [os] package
//
// Collection files are always rewritten whole, so the interface has no
// streaming write methods; [FS.WriteFileAtomic] replaces a file in one step.
package fs

import (
	"os"
)

// FS defines filesystem operations for reading and rewriting collection files.
//
// All methods mirror their [os] package equivalents but can be intercepted
// for testing.
type FS interface {
	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic writes data to a file atomically.
	// Uses a temp file + rename so readers never see a half-written collection.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error

	// ReadDir reads a directory and returns its entries. See [os.ReadDir].
	// Entries are sorted by name.
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error
}
