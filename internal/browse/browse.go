// Package browse produces directory views: confined listings with
// breadcrumbs and a storage snapshot for the requesting principal.
package browse

import (
	"errors"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"gracedisk/internal/fsutil"
	"gracedisk/internal/principal"
	"gracedisk/internal/quota"
)

// ErrNotFound covers confinement failures, missing paths, and non-
// directories alike; callers must not be able to tell them apart.
var ErrNotFound = errors.New("directory not found")

// Entry is one immediate child of the listed directory. Size is
// meaningful for files only.
type Entry struct {
	Name    string    `json:"name"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

// Breadcrumb carries the cumulative subpath up to one segment.
type Breadcrumb struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// View is a complete directory page for one principal and subpath.
type View struct {
	Path        string         `json:"path"`
	Entries     []Entry        `json:"entries"`
	Breadcrumbs []Breadcrumb   `json:"breadcrumbs"`
	Storage     quota.Snapshot `json:"storage"`
}

// List resolves subpath against the principal's root and enumerates its
// immediate children. Entries whose stat fails are skipped; a single bad
// entry never fails the listing. Order is directories first, then
// case-insensitive name, stable for equal keys.
func List(p principal.Principal, subpath string) (*View, error) {
	cp, err := fsutil.Confine(p.Root, subpath)
	if err != nil {
		return nil, ErrNotFound
	}
	st, err := os.Stat(cp.Abs)
	if err != nil || !st.IsDir() {
		return nil, ErrNotFound
	}

	dirents, err := os.ReadDir(cp.Abs)
	if err != nil {
		return nil, ErrNotFound
	}
	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		info, err := de.Info()
		if err != nil {
			continue
		}
		e := Entry{Name: de.Name(), IsDir: de.IsDir(), ModTime: info.ModTime()}
		if !e.IsDir {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	snap, err := snapshot(p)
	if err != nil {
		return nil, err
	}

	rel := cp.Rel()
	return &View{
		Path:        rel,
		Entries:     entries,
		Breadcrumbs: breadcrumbs(rel),
		Storage:     snap,
	}, nil
}

// breadcrumbs builds the navigation trail: the root ("Home") plus one
// entry per segment, each carrying the cumulative prefix.
func breadcrumbs(rel string) []Breadcrumb {
	crumbs := []Breadcrumb{{Name: "Home", Path: ""}}
	if rel == "" {
		return crumbs
	}
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		crumbs = append(crumbs, Breadcrumb{
			Name: part,
			Path: strings.Join(parts[:i+1], "/"),
		})
	}
	return crumbs
}

// snapshot reports whole-volume figures for administrators and visitors
// and quota figures for registered users. A zero quota reports zero
// percent rather than dividing by it.
func snapshot(p principal.Principal) (quota.Snapshot, error) {
	if !p.Quotaed() {
		total, used, err := quota.DiskUsage(p.Root)
		if err != nil {
			return quota.Snapshot{}, err
		}
		snap := quota.Snapshot{IsDisk: true, TotalBytes: total, UsedBytes: used}
		if total > 0 {
			snap.Percent = round2(float64(used) / float64(total) * 100)
		}
		return snap, nil
	}

	used, err := quota.Usage(p.Root)
	if err != nil {
		return quota.Snapshot{}, err
	}
	snap := quota.Snapshot{TotalBytes: p.QuotaBytes, UsedBytes: used}
	if p.QuotaBytes > 0 {
		snap.Percent = round2(float64(used) / float64(p.QuotaBytes) * 100)
	}
	return snap, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
