// Package fingerprint lists package folders and reduces a listing to a short,
// order-independent digest.
//
// Only relative paths and sizes are considered; file contents are never read,
// so the cost of a scan is bounded by the number of directory entries.
package fingerprint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"

	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
)

// Entry is one regular file in a listing.
type Entry struct {
	Path string // relative, forward slashes, NFC
	Size int64
}

// Listing is the sorted set of files below a folder.
type Listing []Entry

// Fingerprint returns the 16 hex digit xxhash64 digest of the listing.
// Listings holding the same entries produce the same digest regardless of scan order.
func (l Listing) Fingerprint() string {
	sorted := l
	if !sort.SliceIsSorted(l, func(i, j int) bool { return l[i].Path < l[j].Path }) {
		sorted = append(Listing(nil), l...)
		sortEntries(sorted)
	}

	h := xxhash.New()
	buf := make([]byte, 0, 64)
	for _, e := range sorted {
		buf = buf[:0]
		buf = append(buf, e.Path...)
		buf = append(buf, 0)
		buf = strconv.AppendInt(buf, e.Size, 10)
		buf = append(buf, '\n')
		_, _ = h.Write(buf)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// TotalSize sums the sizes of all entries.
func (l Listing) TotalSize() int64 {
	var n int64
	for _, e := range l {
		n += e.Size
	}
	return n
}

// Diff describes how a listing differs from the one it was compared with.
type Diff struct {
	Missing    []string // in the reference, absent here
	Mismatched []string // present in both with different sizes
	Extra      []string // here, absent from the reference
}

// Empty reports whether the listings were identical.
func (d Diff) Empty() bool {
	return len(d.Missing) == 0 && len(d.Mismatched) == 0 && len(d.Extra) == 0
}

func (d Diff) String() string {
	return fmt.Sprintf("%d missing, %d size mismatches, %d extra", len(d.Missing), len(d.Mismatched), len(d.Extra))
}

// Diff compares l against reference. Both listings must be sorted, as returned by Scan.
func (l Listing) Diff(reference Listing) Diff {
	var d Diff
	i, j := 0, 0
	for i < len(reference) || j < len(l) {
		switch {
		case j >= len(l) || (i < len(reference) && reference[i].Path < l[j].Path):
			d.Missing = append(d.Missing, reference[i].Path)
			i++
		case i >= len(reference) || l[j].Path < reference[i].Path:
			d.Extra = append(d.Extra, l[j].Path)
			j++
		default:
			if reference[i].Size != l[j].Size {
				d.Mismatched = append(d.Mismatched, l[j].Path)
			}
			i++
			j++
		}
	}
	return d
}

// Collector scans folders through an afero filesystem.
type Collector struct {
	fs afero.Fs
}

// NewCollector creates a collector reading from fs.
func NewCollector(fs afero.Fs) *Collector {
	return &Collector{fs: fs}
}

// Scan lists every regular file below root. Symbolic links are skipped.
// A missing or unreadable folder, including one removed mid-walk, yields a scan error.
func (c *Collector) Scan(root string) (Listing, error) {
	info, err := c.fs.Stat(root)
	if err != nil {
		return nil, scanError(root, err)
	}
	if !info.IsDir() {
		return nil, derrors.ScanError("not a directory").WithContext("path", root).Build()
	}

	var listing Listing
	err = afero.Walk(c.fs, root, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		listing = append(listing, Entry{Path: NormalizePath(rel), Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, scanError(root, err)
	}

	sortEntries(listing)
	return listing, nil
}

// Fingerprint scans root and returns its digest together with the listing.
func (c *Collector) Fingerprint(root string) (string, Listing, error) {
	listing, err := c.Scan(root)
	if err != nil {
		return "", nil, err
	}
	return listing.Fingerprint(), listing, nil
}

// NormalizePath converts a relative path to forward slashes in Unicode NFC.
func NormalizePath(p string) string {
	return norm.NFC.String(filepath.ToSlash(p))
}

func sortEntries(l Listing) {
	sort.Slice(l, func(i, j int) bool { return l[i].Path < l[j].Path })
}

func scanError(root string, err error) error {
	return derrors.WrapError(err, derrors.CategoryScan, "failed to scan folder").
		NextCycle().
		WithContext("path", root).
		Build()
}
