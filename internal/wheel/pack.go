// SPDX-License-Identifier: MPL-2.0

package wheel

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/flate"

	"wheelwright/internal/manifest"
)

// packEpoch is the fixed modification time stamped on every archive
// entry. Zip timestamps cannot represent anything earlier than 1980, so
// the zip epoch itself is used; with it, packing the same staged tree
// twice yields byte-identical archives.
var packEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Pack writes the staged tree rooted at dir into a wheel archive at
// path. Entries are written in manifest order, so a sorted manifest
// makes the archive layout deterministic. The manifest's own record file
// must already exist inside dir.
func Pack(path, dir string, records []manifest.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	for _, rec := range records {
		if err := packEntry(zw, dir, rec.Path); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	return nil
}

func packEntry(zw *zip.Writer, dir, relPath string) error {
	src := filepath.Join(dir, filepath.FromSlash(relPath))
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("staged entry %s: %w", relPath, err)
	}

	hdr := &zip.FileHeader{
		Name:     relPath,
		Method:   zip.Deflate,
		Modified: packEpoch,
	}
	hdr.SetMode(info.Mode().Perm())

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("adding %s: %w", relPath, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("reading staged entry %s: %w", relPath, err)
	}
	defer in.Close()

	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("packing %s: %w", relPath, err)
	}
	return nil
}
