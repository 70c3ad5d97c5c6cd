// Package fsutil provides the filesystem primitives dropsync builds on: atomic
// file replacement and incremental directory copies.
//
// Everything goes through an afero.Fs so the same code runs against the real
// disk (afero.NewOsFs) and in-memory filesystems in tests.
//
// Symbolic links are never followed or copied. Only regular files and the
// directories holding them are considered package content.
package fsutil
