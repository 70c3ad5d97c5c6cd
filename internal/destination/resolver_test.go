package destination

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dropsync/internal/config"
	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
	"git.home.luguber.info/inful/dropsync/internal/naming"
)

func setupBases(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/mnt/a/other", 0o755))
	require.NoError(t, fs.MkdirAll("/mnt/b/acme", 0o755))
	require.NoError(t, fs.MkdirAll("/mnt/c/acme", 0o755))
	return fs
}

func TestResolveFirstMatchingBase(t *testing.T) {
	r := NewResolver(setupBases(t), config.DestinationsConfig{
		Bases:        []string{"/mnt/missing", "/mnt/a", "/mnt/b", "/mnt/c"},
		IngestPrefix: "in/vendors",
		Mode:         config.DestinationModeFirst,
	})

	targets, err := r.Resolve(naming.Owner{Project: "acme", User: "bob"}, "pkg1")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, Target{
		Base:        "/mnt/b",
		ProjectPath: "/mnt/b/acme",
		PackagePath: "/mnt/b/acme/in/vendors/bob/pkg1",
	}, targets[0])
}

func TestResolveAllMatchingBases(t *testing.T) {
	r := NewResolver(setupBases(t), config.DestinationsConfig{
		Bases: []string{"/mnt/a", "/mnt/b", "/mnt/c"},
		Mode:  config.DestinationModeAll,
	})

	targets, err := r.Resolve(naming.Owner{Project: "acme", User: "bob"}, "pkg1")
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "/mnt/b/acme/bob/pkg1", targets[0].PackagePath)
	assert.Equal(t, "/mnt/c/acme/bob/pkg1", targets[1].PackagePath)
}

func TestResolveNoMatch(t *testing.T) {
	r := NewResolver(setupBases(t), config.DestinationsConfig{Bases: []string{"/mnt/a"}})

	_, err := r.Resolve(naming.Owner{Project: "acme", User: "bob"}, "pkg1")
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryDestination))
}

func TestUpdateSwapsBases(t *testing.T) {
	r := NewResolver(setupBases(t), config.DestinationsConfig{Bases: []string{"/mnt/a"}})
	r.Update(config.DestinationsConfig{Bases: []string{"/mnt/c"}, IngestPrefix: "/drop/"})

	targets, err := r.Resolve(naming.Owner{Project: "acme", User: "bob"}, "pkg1")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/c/acme/drop/bob/pkg1", targets[0].PackagePath)
}
