// Package testutil collects small helpers shared by the engine's test
// suites: deterministic random byte/range generation and scratch-file
// creation.
package testutil

import (
	"math/rand"
	"path/filepath"
	"testing"
)

// RandBytes returns n pseudo-random bytes from rng.
func RandBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

// RandRange returns a pseudo-random location in [0, maxLocation) and a
// pseudo-random length in [1, maxLength].
func RandRange(rng *rand.Rand, maxLocation, maxLength int64) (location, length int64) {
	location = rng.Int63n(maxLocation)
	length = rng.Int63n(maxLength) + 1
	return location, length
}

// TempFilePath returns a path to a not-yet-created file inside a directory
// t.TempDir() will clean up, for tests that need a file path rather than an
// already-open *os.File.
func TempFilePath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}
