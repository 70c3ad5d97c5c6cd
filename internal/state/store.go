package state

import (
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"

	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
	"git.home.luguber.info/inful/dropsync/internal/fsutil"
)

const filePerm os.FileMode = 0o644

// Entry pairs a record with its identity.
type Entry struct {
	Identity string
	Record   Record
}

// Store holds the records of one source directory.
type Store struct {
	fs   afero.Fs
	path string

	mu      sync.RWMutex
	records map[string]Record
}

// Open loads the state file at path. A missing file yields an empty store.
// A file that cannot be read or parsed, or holds an invalid record, is a
// state corruption error: the operator has to repair or remove it.
func Open(fs afero.Fs, path string) (*Store, error) {
	s := &Store{fs: fs, path: path, records: make(map[string]Record)}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, corruption(err, path, "state file is unreadable")
	}

	var raw map[string]fileRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, corruption(err, path, "state file is not valid JSON")
	}
	for id, fr := range raw {
		if id == "" {
			return nil, derrors.StateCorruptionError("state file holds an empty identity").
				WithContext("path", path).
				Build()
		}
		rec, err := fromFile(fr)
		if err != nil {
			return nil, corruption(err, path, "state file holds an invalid record").WithContext("identity", id)
		}
		s.records[norm.NFC.String(id)] = rec
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the record for identity.
func (s *Store) Get(identity string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[identity]
	return rec, ok
}

// Upsert stores rec under identity and flushes the whole file.
// The in-memory record is updated even when the flush fails.
func (s *Store) Upsert(identity string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[identity] = rec
	return s.flushLocked()
}

// Put stores rec under identity without touching the file. Callers batch
// several Puts and then call Flush.
func (s *Store) Put(identity string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[identity] = rec
}

// All returns every record sorted by identity.
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.records))
	for id, rec := range s.records {
		out = append(out, Entry{Identity: id, Record: rec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Flush rewrites the state file.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	out := make(map[string]fileRecord, len(s.records))
	for id, rec := range s.records {
		out[id] = toFile(rec)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryInternal, "failed to encode state").Build()
	}
	data = append(data, '\n')
	if err := fsutil.AtomicWrite(s.fs, s.path, data, filePerm); err != nil {
		return derrors.WrapError(err, derrors.CategoryFileSystem, "failed to write state file").
			WithContext("path", s.path).
			Build()
	}
	return nil
}

func corruption(err error, path, msg string) *derrors.ClassifiedError {
	return derrors.WrapError(err, derrors.CategoryState, msg).
		Fatal().
		UserAction().
		WithContext("path", path).
		Build()
}
