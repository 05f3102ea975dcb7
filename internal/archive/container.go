package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/veridoc/veridoc/model"
)

// FormatVersion is bumped when the archive layout changes incompatibly.
// Restores reject archives with an unknown version.
const FormatVersion = 1

const (
	manifestName = "manifest.json"
	recordsName  = "records.ndjson"
)

// Manifest describes an archive: written first in the tarball, verified
// before any record is read.
type Manifest struct {
	FormatVersion int            `json:"format_version"`
	ExportedAt    time.Time      `json:"exported_at"`
	Counts        map[string]int `json:"counts"`

	// Checksum is the hex sha256 of the records.ndjson byte stream.
	Checksum string `json:"checksum"`
}

// ChecksumHex returns the hex sha256 of data.
func ChecksumHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WriteContainer writes a gzip tarball holding the manifest and the records
// stream. The file is written via a temp file and renamed so a crashed
// export never leaves a truncated archive at path.
func WriteContainer(path string, manifest Manifest, records []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".veridoc-export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := writeTarball(tmp, manifest, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeTarball(w io.Writer, manifest Manifest, records []byte) error {
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	files := []struct {
		name string
		data []byte
	}{
		{manifestName, manifestData},
		{recordsName, records},
	}
	for _, f := range files {
		hdr := &tar.Header{
			Name:    f.name,
			Mode:    0o644,
			Size:    int64(len(f.data)),
			ModTime: manifest.ExportedAt,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write(f.data); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// OpenContainer reads an archive, verifies its checksum, and returns the
// manifest together with the decoded record list in archive order. Every
// structural problem maps to ARCHIVE_INTEGRITY.
func OpenContainer(path string) (Manifest, []Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, nil, model.NewArchiveIntegrityError(
			fmt.Sprintf("open archive %s: %v", path, err))
	}
	defer f.Close()

	manifestData, recordsData, err := readTarball(f)
	if err != nil {
		return Manifest{}, nil, model.NewArchiveIntegrityError(
			fmt.Sprintf("read archive %s: %v", path, err))
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return Manifest{}, nil, model.NewArchiveIntegrityError(
			fmt.Sprintf("decode manifest: %v", err))
	}
	if manifest.FormatVersion != FormatVersion {
		return Manifest{}, nil, model.NewArchiveIntegrityError(
			fmt.Sprintf("unsupported archive format version %d", manifest.FormatVersion))
	}
	if sum := ChecksumHex(recordsData); sum != manifest.Checksum {
		return Manifest{}, nil, model.NewArchiveIntegrityError(
			fmt.Sprintf("checksum mismatch: manifest %s, computed %s", manifest.Checksum, sum))
	}

	records, err := decodeRecords(recordsData)
	if err != nil {
		return Manifest{}, nil, err
	}
	return manifest, records, nil
}

func readTarball(r io.Reader) (manifest, records []byte, err error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, err
		}
		switch hdr.Name {
		case manifestName:
			manifest = data
		case recordsName:
			records = data
		}
	}
	if manifest == nil {
		return nil, nil, fmt.Errorf("archive has no %s", manifestName)
	}
	if records == nil {
		return nil, nil, fmt.Errorf("archive has no %s", recordsName)
	}
	return manifest, records, nil
}

func decodeRecords(data []byte) ([]Record, error) {
	var records []Record
	dec := json.NewDecoder(bytes.NewReader(data))
	for line := 1; ; line++ {
		var rec Record
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, model.NewArchiveIntegrityError(
				fmt.Sprintf("decode record %d: %v", line, err))
		}
		if !KnownKind(rec.Kind) {
			return nil, model.NewArchiveIntegrityError(
				fmt.Sprintf("record %d has unknown kind %q", line, rec.Kind))
		}
		records = append(records, rec)
	}
	return records, nil
}
