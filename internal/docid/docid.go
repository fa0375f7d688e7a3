// Package docid derives stable document identifiers from file paths.
package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "doc:"

// FromPath returns "doc:" plus the hex SHA-256 of the cleaned path. The same path always
// yields the same ID, so chunks from one file share a source across rebuilds.
func FromPath(path string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(hash[:])
}

// FromAbs resolves path to an absolute path first. It falls back to the cleaned path
// when the working directory is unknown.
func FromAbs(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return FromPath(path)
}
