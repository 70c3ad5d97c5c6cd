// Package destination finds where a package is copied to.
//
// A destination base is a directory holding one directory per project. A base
// serves a package when it contains a directory named after the package's
// project; the package then lands in
// <base>/<project>/<ingest prefix>/<user>/<package>.
package destination

import (
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/dropsync/internal/config"
	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
	"git.home.luguber.info/inful/dropsync/internal/logfields"
	"git.home.luguber.info/inful/dropsync/internal/naming"
)

// Target is one place a package is copied to.
type Target struct {
	Base        string
	ProjectPath string
	PackagePath string
}

// Resolver maps owners to destination targets. Safe for concurrent use.
type Resolver struct {
	fs afero.Fs

	mu           sync.RWMutex
	bases        []string
	ingestPrefix string
	mode         config.DestinationMode
}

// NewResolver creates a resolver from the destinations section of the config.
func NewResolver(fs afero.Fs, cfg config.DestinationsConfig) *Resolver {
	r := &Resolver{fs: fs}
	r.Update(cfg)
	return r
}

// Update replaces bases, prefix and mode. Used on config reload.
func (r *Resolver) Update(cfg config.DestinationsConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bases = append([]string(nil), cfg.Bases...)
	r.ingestPrefix = strings.Trim(cfg.IngestPrefix, "/")
	r.mode = cfg.Mode
	if r.mode == "" {
		r.mode = config.DestinationModeFirst
	}
}

// Resolve returns the targets for a package, in base order. In "first" mode at most one
// target is returned. No matching base is a destination unavailable error.
func (r *Resolver) Resolve(owner naming.Owner, pkg string) ([]Target, error) {
	r.mu.RLock()
	bases, prefix, mode := r.bases, r.ingestPrefix, r.mode
	r.mu.RUnlock()

	var targets []Target
	for _, base := range bases {
		ok, err := afero.DirExists(r.fs, base)
		if err != nil || !ok {
			slog.Warn("Destination base path does not exist", logfields.Path(base))
			continue
		}

		projectPath := filepath.Join(base, owner.Project)
		if ok, _ := afero.DirExists(r.fs, projectPath); !ok {
			slog.Debug("No matching project in destination base",
				logfields.Project(owner.Project),
				logfields.Path(base))
			continue
		}

		targets = append(targets, Target{
			Base:        base,
			ProjectPath: projectPath,
			PackagePath: packagePath(projectPath, prefix, owner.User, pkg),
		})
		if mode == config.DestinationModeFirst {
			break
		}
	}

	if len(targets) == 0 {
		return nil, derrors.DestinationUnavailableError("no destination base contains the project directory").
			WithContext("project", owner.Project).
			WithContext("bases", strings.Join(bases, ",")).
			Build()
	}
	return targets, nil
}

func packagePath(projectPath, prefix, user, pkg string) string {
	parts := []string{projectPath}
	if prefix != "" {
		parts = append(parts, filepath.FromSlash(path.Clean(prefix)))
	}
	parts = append(parts, user, pkg)
	return filepath.Join(parts...)
}
