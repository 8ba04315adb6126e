// SPDX-License-Identifier: MPL-2.0

// Package manifest generates and verifies the content-addressed file list
// embedded in the output archive.
//
// The manifest is one record per file: relative path, sha256 digest in
// URL-safe unpadded base64, and byte length, comma-separated, one line per
// record, no header row. Records are ordered lexicographically by relative
// path so the manifest is byte-reproducible across runs given identical
// input bytes. By convention the manifest's own record carries empty digest
// and length fields: a manifest does not hash itself.
package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// DigestPrefix tags every digest field with the fixed algorithm.
const DigestPrefix = "sha256="

// Record is one manifest line. A Size below zero means the length field is
// empty, which only ever applies to the manifest's own record.
type Record struct {
	// Path is the slash-separated path relative to the archive root.
	Path string
	// Digest is "sha256=<url-safe unpadded base64>", empty for the
	// manifest's own record.
	Digest string
	// Size is the byte length, -1 for the manifest's own record.
	Size int64
}

// Digest computes the manifest digest field for the given content.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return DigestPrefix + base64.RawURLEncoding.EncodeToString(sum[:])
}

// hashFile streams the file through sha256 and returns its digest field and
// byte length.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return DigestPrefix + base64.RawURLEncoding.EncodeToString(h.Sum(nil)), n, nil
}

// Generate walks every regular file under root exactly once and returns one
// record per file, sorted lexicographically by relative path. recordPath is
// the manifest's own path inside the tree; it receives the conventional
// empty record whether or not the file exists yet (it normally does not:
// the manifest is generated before being written into the tree).
func Generate(root, recordPath string) ([]Record, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking archive tree: %w", err)
	}

	// The manifest's own record participates in the ordering even though
	// its file is typically written afterwards.
	present := false
	for _, p := range paths {
		if p == recordPath {
			present = true
			break
		}
	}
	if !present {
		paths = append(paths, recordPath)
	}
	sort.Strings(paths)

	records := make([]Record, 0, len(paths))
	for _, rel := range paths {
		if rel == recordPath {
			records = append(records, Record{Path: rel, Size: -1})
			continue
		}
		digest, size, err := hashFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		records = append(records, Record{Path: rel, Digest: digest, Size: size})
	}
	return records, nil
}

// Write serializes records in order, one CSV line each.
func Write(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	for _, r := range records {
		size := ""
		if r.Size >= 0 {
			size = strconv.FormatInt(r.Size, 10)
		}
		if err := cw.Write([]string{r.Path, r.Digest, size}); err != nil {
			return fmt.Errorf("writing manifest record %s: %w", r.Path, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Encode renders records to bytes.
func Encode(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse reads manifest records back from their serialized form.
func Parse(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing manifest: %w", err)
		}

		rec := Record{Path: row[0], Digest: row[1], Size: -1}
		if row[2] != "" {
			size, err := strconv.ParseInt(row[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing manifest size for %s: %w", row[0], err)
			}
			rec.Size = size
		}
		records = append(records, rec)
	}
	return records, nil
}

// Mismatch describes one divergence between a manifest and an unpacked
// tree.
type Mismatch struct {
	Path   string
	Reason string
}

func (m Mismatch) String() string {
	return m.Path + ": " + m.Reason
}

// VerifyDir recomputes digests for every file under root and compares them
// against records, in both directions: every record must reference a
// present, matching file, and every file must have exactly one record. The
// record with an empty digest (the manifest itself) is checked for
// presence only.
func VerifyDir(root string, records []Record) []Mismatch {
	var mismatches []Mismatch

	recorded := make(map[string]Record, len(records))
	for _, r := range records {
		recorded[r.Path] = r
	}

	for _, r := range records {
		full := filepath.Join(root, filepath.FromSlash(r.Path))
		info, err := os.Stat(full)
		if err != nil {
			mismatches = append(mismatches, Mismatch{r.Path, "recorded but absent from tree"})
			continue
		}
		if r.Digest == "" {
			continue
		}
		if info.Size() != r.Size {
			mismatches = append(mismatches, Mismatch{r.Path,
				fmt.Sprintf("size %d, manifest says %d", info.Size(), r.Size)})
			continue
		}
		digest, _, err := hashFile(full)
		if err != nil {
			mismatches = append(mismatches, Mismatch{r.Path, "unreadable: " + err.Error()})
			continue
		}
		if digest != r.Digest {
			mismatches = append(mismatches, Mismatch{r.Path, "content digest differs from manifest"})
		}
	}

	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		if _, ok := recorded[filepath.ToSlash(rel)]; !ok {
			mismatches = append(mismatches, Mismatch{filepath.ToSlash(rel), "present but not recorded"})
		}
		return nil
	})

	return mismatches
}
