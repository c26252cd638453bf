// Package archive extracts NetCDF payloads from daily ZIP archives, opening
// them in memory when feasible and falling back to disk extraction with
// probe, system-temp and ASCII-path retries.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aerisview/reanalysis-etl/internal/grid"
)

// ErrNoMember is returned when an archive contains no NetCDF member.
var ErrNoMember = errors.New("archive: no NetCDF member found")

// Reader opens the NetCDF members of a daily archive. A zero MaxInMemoryBytes
// places no size limit on in-memory opens. PureMemory forbids every disk
// write; AllowDiskFallback gates extraction when the in-memory path fails.
type Reader struct {
	MaxInMemoryBytes  int64
	PureMemory        bool
	AllowDiskFallback bool
	Manifest          *Manifest
	Logger            *slog.Logger

	// ASCII retry directories are cached per volume root and reused across
	// calls to avoid temp-directory proliferation.
	asciiMu   sync.Mutex
	asciiDirs map[string]string
}

// ReadDay extracts every hourly grid from the archive. When member is
// non-empty only that member is read; otherwise all NetCDF members are read
// in name order. Unreadable members are logged and skipped; the error is
// non-nil only when no member could be opened.
func (r *Reader) ReadDay(zipPath, member string, day time.Time) ([]grid.Item, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", zipPath, err)
	}
	defer zr.Close()

	files := selectMembers(&zr.Reader, member)
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoMember, zipPath)
	}

	var items []grid.Item
	var lastErr error
	for _, f := range files {
		item, err := r.readMember(f, zipPath, day)
		if err != nil {
			lastErr = err
			if r.Logger != nil {
				r.Logger.Warn("skipping unreadable member",
					"archive", zipPath, "member", f.Name, "error", err)
			}
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no member of %s could be opened: %w", zipPath, lastErr)
	}
	return items, nil
}

// selectMembers returns the NetCDF members to read: the explicitly requested
// one if given, otherwise all .nc members sorted by name. An archive with no
// .nc member at all falls back to its first member.
func selectMembers(zr *zip.Reader, member string) []*zip.File {
	var files []*zip.File
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".nc") {
			continue
		}
		if member != "" && f.Name != member {
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 && member == "" && len(zr.File) > 0 {
		return zr.File[:1]
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}

// readMember opens one member, in memory first, then via disk extraction.
func (r *Reader) readMember(f *zip.File, zipPath string, day time.Time) (grid.Item, error) {
	size := int64(f.UncompressedSize64)
	tryInMemory := r.PureMemory || r.MaxInMemoryBytes <= 0 || size <= r.MaxInMemoryBytes

	var attempts []attempt
	if tryInMemory {
		raw, err := readMemberBytes(f)
		if err == nil {
			g, tried := openBytes(raw)
			attempts = tried
			if g != nil {
				defer g.Close()
				return decodeItem(g, day)
			}
		} else {
			attempts = append(attempts, attempt{engine: "zip", err: err})
		}
	}

	if r.PureMemory {
		return grid.Item{}, fmt.Errorf("in-memory open of %s failed and pure-memory mode forbids disk extraction: %s",
			f.Name, formatAttempts(attempts))
	}
	if !r.AllowDiskFallback {
		return grid.Item{}, fmt.Errorf("in-memory open of %s failed and disk fallback is disabled: %s",
			f.Name, formatAttempts(attempts))
	}
	return r.readViaDisk(f, zipPath, day, attempts)
}

// readViaDisk extracts the member next to the archive (cheap same-filesystem
// moves), probes it, and opens it from disk. A failed probe retries the
// extraction in the system temp directory.
func (r *Reader) readViaDisk(f *zip.File, zipPath string, day time.Time, attempts []attempt) (grid.Item, error) {
	tmpDir, err := os.MkdirTemp(filepath.Dir(zipPath), "nc-extract-")
	if err != nil {
		tmpDir, err = os.MkdirTemp("", "nc-extract-")
		if err != nil {
			return grid.Item{}, fmt.Errorf("create temp dir for %s: %w", f.Name, err)
		}
	}

	// Extract by flat basename to sidestep directory prefixes in member names.
	extracted := filepath.Join(tmpDir, filepath.Base(f.Name))
	if err := extractTo(f, extracted); err != nil {
		r.release(tmpDir)
		return grid.Item{}, fmt.Errorf("extract %s: %w", f.Name, err)
	}

	// Verify the extracted file is actually readable before a dataset open;
	// scanners and network filesystems have been seen locking fresh files.
	if err := probeFile(extracted); err != nil {
		sysDir, sysErr := os.MkdirTemp("", "nc-extract-")
		if sysErr != nil {
			r.release(tmpDir)
			return grid.Item{}, fmt.Errorf("probe %s failed (%v) and system temp retry failed: %w", extracted, err, sysErr)
		}
		retried := filepath.Join(sysDir, filepath.Base(f.Name))
		if sysErr := extractTo(f, retried); sysErr != nil {
			r.release(tmpDir)
			r.release(sysDir)
			return grid.Item{}, fmt.Errorf("re-extract %s to system temp: %w", f.Name, sysErr)
		}
		r.release(tmpDir)
		tmpDir, extracted = sysDir, retried
	}

	item, err := r.openExtracted(extracted, zipPath, day, attempts)
	r.release(tmpDir)
	return item, err
}

// openExtracted opens the on-disk file, retrying from a cached ASCII-only
// path when the failure looks like a filesystem path issue.
func (r *Reader) openExtracted(path, zipPath string, day time.Time, attempts []attempt) (grid.Item, error) {
	g, err := openFile(path)
	if err != nil && isNotFoundClass(err) {
		asciiDir, dirErr := r.asciiDir(zipPath)
		if dirErr == nil {
			fallback := filepath.Join(asciiDir, filepath.Base(path))
			if copyErr := copyFile(path, fallback); copyErr == nil {
				g, err = openFile(fallback)
			}
		}
	}
	if err != nil {
		attempts = append(attempts, attempt{engine: "netcdf", err: err})
		return grid.Item{}, fmt.Errorf("open extracted %s: %s", path, formatAttempts(attempts))
	}
	defer g.Close()
	return decodeItem(g, day)
}

// asciiDir returns the cached ASCII-only temp directory for the archive's
// volume, creating and recording it on first use. The directory is reused
// across calls and reclaimed by the deferred cleanup pass.
func (r *Reader) asciiDir(zipPath string) (string, error) {
	key := filepath.VolumeName(zipPath)
	if key == "" {
		key = "system"
	}

	r.asciiMu.Lock()
	defer r.asciiMu.Unlock()
	if r.asciiDirs == nil {
		r.asciiDirs = make(map[string]string)
	}
	if dir, ok := r.asciiDirs[key]; ok {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	var dir string
	var err error
	if key == "system" {
		dir, err = os.MkdirTemp("", "nc_ascii_")
	} else {
		dir, err = os.MkdirTemp(key+string(os.PathSeparator), "nc_ascii_")
		if err != nil {
			dir, err = os.MkdirTemp("", "nc_ascii_")
		}
	}
	if err != nil {
		return "", err
	}
	r.asciiDirs[key] = dir
	if r.Manifest != nil {
		if recErr := r.Manifest.Record(dir); recErr != nil && r.Logger != nil {
			r.Logger.Warn("failed to record ascii temp dir", "dir", dir, "error", recErr)
		}
	}
	return dir, nil
}

// release deletes a temp directory immediately, falling back to the durable
// cleanup manifest when deletion fails.
func (r *Reader) release(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err == nil {
		return
	}
	if r.Manifest != nil {
		if err := r.Manifest.Record(dir); err != nil && r.Logger != nil {
			r.Logger.Warn("failed to record temp dir for cleanup", "dir", dir, "error", err)
		}
	}
}

func readMemberBytes(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func extractTo(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// probeFile verifies the file can be opened and read.
func probeFile(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	buf := make([]byte, 8)
	if _, err := fh.Read(buf); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// isNotFoundClass matches "file not found"-style errors, including the ones
// surfaced from C-layer-style messages on filesystems with non-ASCII path
// issues.
func isNotFoundClass(err error) bool {
	if os.IsNotExist(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such file") ||
		strings.Contains(msg, "cannot open") ||
		strings.Contains(msg, "cannot find")
}

func formatAttempts(attempts []attempt) string {
	if len(attempts) == 0 {
		return "no engine attempted"
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.engine, a.err))
	}
	return "engines tried: " + strings.Join(parts, "; ")
}
