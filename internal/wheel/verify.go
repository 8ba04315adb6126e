// SPDX-License-Identifier: MPL-2.0

package wheel

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"strings"

	"wheelwright/internal/manifest"
)

// ErrNoRecord is returned by Verify when the archive carries no
// dist-info manifest.
var ErrNoRecord = errors.New("archive has no record manifest")

// Verify reads the archive at path, locates its embedded manifest, and
// checks every entry against it in both directions. It returns the
// mismatches found; an empty slice means the archive is intact.
func Verify(path string) ([]manifest.Mismatch, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	records, recordPath, err := readRecord(&zr.Reader)
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]manifest.Record, len(records))
	for _, rec := range records {
		byPath[rec.Path] = rec
	}

	var mismatches []manifest.Mismatch
	seen := make(map[string]bool, len(zr.File))
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		seen[zf.Name] = true

		rec, ok := byPath[zf.Name]
		if !ok {
			mismatches = append(mismatches, manifest.Mismatch{
				Path:   zf.Name,
				Reason: "present but not recorded",
			})
			continue
		}
		if zf.Name == recordPath {
			continue
		}
		if m := checkEntry(zf, rec); m != nil {
			mismatches = append(mismatches, *m)
		}
	}

	for _, rec := range records {
		if !seen[rec.Path] {
			mismatches = append(mismatches, manifest.Mismatch{
				Path:   rec.Path,
				Reason: "recorded but missing from archive",
			})
		}
	}
	return mismatches, nil
}

func checkEntry(zf *zip.File, rec manifest.Record) *manifest.Mismatch {
	rc, err := zf.Open()
	if err != nil {
		return &manifest.Mismatch{Path: zf.Name, Reason: fmt.Sprintf("unreadable: %v", err)}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return &manifest.Mismatch{Path: zf.Name, Reason: fmt.Sprintf("unreadable: %v", err)}
	}
	if rec.Size >= 0 && int64(len(data)) != rec.Size {
		return &manifest.Mismatch{Path: zf.Name, Reason: "size differs from record"}
	}
	if rec.Digest != "" && manifest.Digest(data) != rec.Digest {
		return &manifest.Mismatch{Path: zf.Name, Reason: "content digest differs from record"}
	}
	return nil
}

// ReadManifest returns the embedded manifest of the archive at path.
func ReadManifest(path string) ([]manifest.Record, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	records, _, err := readRecord(&zr.Reader)
	return records, err
}

func readRecord(zr *zip.Reader) ([]manifest.Record, string, error) {
	for _, zf := range zr.File {
		if !strings.HasSuffix(zf.Name, ".dist-info/RECORD") {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, "", fmt.Errorf("opening record manifest: %w", err)
		}
		records, err := manifest.Parse(rc)
		rc.Close()
		if err != nil {
			return nil, "", fmt.Errorf("parsing record manifest: %w", err)
		}
		return records, zf.Name, nil
	}
	return nil, "", ErrNoRecord
}
