// Package state persists package records for one source directory.
//
// Each source directory owns one JSON file mapping package identities to their
// record. The whole file is loaded into memory on Open and rewritten atomically
// after every mutation, so a crash leaves either the previous or the new
// version on disk, never a partial file.
//
// The store is the single source of truth for stability counters, retry counts
// and sync status. A single process is expected to own a state file; the
// internal lock only protects readers such as the admin status endpoint.
package state
