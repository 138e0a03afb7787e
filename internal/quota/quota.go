package quota

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// ExceededError reports a denied write together with the space still
// available, so callers can show a precise shortfall.
type ExceededError struct {
	Remaining int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s remaining", humanize.IBytes(uint64(e.Remaining)))
}

// Usage sums the sizes of all regular files under root. Symbolic links
// are not followed (loops, double-counting) and unreadable entries are
// skipped rather than failing the walk.
//
// TODO: maintain an incrementally updated per-user counter instead of
// rewalking the tree on every upload.
func Usage(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking %s: %w", root, err)
	}
	return total, nil
}

// CheckAndReserve recomputes usage and decides whether an incoming write
// of the given size fits. The check is best-effort: two concurrent
// uploads can both pass and jointly exceed the quota.
func CheckAndReserve(root string, quotaBytes, incomingBytes int64) error {
	used, err := Usage(root)
	if err != nil {
		return err
	}
	if used+incomingBytes > quotaBytes {
		remaining := quotaBytes - used
		if remaining < 0 {
			remaining = 0
		}
		return &ExceededError{Remaining: remaining}
	}
	return nil
}

// DiskUsage returns total and used bytes for the volume holding path.
func DiskUsage(path string) (total, used int64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	total = int64(st.Blocks) * int64(st.Bsize)
	free := int64(st.Bfree) * int64(st.Bsize)
	return total, total - free, nil
}

// Snapshot is the storage view shown alongside a directory listing.
// IsDisk marks whole-volume figures (administrator/visitor) as opposed
// to quota figures (registered user).
type Snapshot struct {
	IsDisk     bool    `json:"is_disk"`
	TotalBytes int64   `json:"total"`
	UsedBytes  int64   `json:"used"`
	Percent    float64 `json:"percent"`
}
