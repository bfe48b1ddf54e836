package backup

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	snapshotEntry = "backup.json"
	imagesPrefix  = "images/"
	// maxImageSize bounds a single decompressed entry read from an archive.
	maxImageSize = 64 << 20
	// maxArchiveSize bounds all decompressed entries of one archive together.
	maxArchiveSize = 512 << 20
)

// Image is a named picture carried in an archive.
type Image struct {
	Name string
	Data []byte
}

// IsArchive reports whether data starts with a zip local file header.
func IsArchive(data []byte) bool {
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

// WriteArchive writes a zip with the optional snapshot document at
// backup.json and every image under images/.
func WriteArchive(w io.Writer, snapshot []byte, images []Image) error {
	zw := zip.NewWriter(w)
	if snapshot != nil {
		f, err := zw.Create(snapshotEntry)
		if err != nil {
			return fmt.Errorf("add %s: %w", snapshotEntry, err)
		}
		if _, err := f.Write(snapshot); err != nil {
			return fmt.Errorf("write %s: %w", snapshotEntry, err)
		}
	}
	for _, img := range images {
		f, err := zw.CreateHeader(&zip.FileHeader{Name: imagesPrefix + img.Name, Method: zip.Store})
		if err != nil {
			return fmt.Errorf("add image %s: %w", img.Name, err)
		}
		if _, err := f.Write(img.Data); err != nil {
			return fmt.Errorf("write image %s: %w", img.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

// ReadArchive returns the snapshot document (nil when the archive only holds
// images) and the images found under images/.
func ReadArchive(data []byte) ([]byte, []Image, error) {
	return readArchive(data, maxImageSize, maxArchiveSize)
}

func readArchive(data []byte, entryLimit, totalLimit int64) ([]byte, []Image, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, invalid("archive", "%v", err)
	}

	var snapshot []byte
	var images []Image
	budget := totalLimit
	read := func(f *zip.File) ([]byte, error) {
		limit := entryLimit
		if budget < limit {
			limit = budget
		}
		body, err := readEntry(f, limit)
		if errors.Is(err, errEntryTooLarge) {
			if budget < entryLimit {
				return nil, invalid("archive", "decompressed contents exceed %d bytes", totalLimit)
			}
			return nil, invalid("archive", "%v", err)
		}
		if err != nil {
			return nil, err
		}
		budget -= int64(len(body))
		return body, nil
	}
	for _, f := range zr.File {
		name := strings.TrimPrefix(path.Clean("/"+f.Name), "/")
		switch {
		case f.FileInfo().IsDir():
			continue
		case name == snapshotEntry:
			snapshot, err = read(f)
			if err != nil {
				return nil, nil, err
			}
		case strings.HasPrefix(name, imagesPrefix):
			base := path.Base(name)
			if base == "" || base == "." || strings.HasPrefix(base, ".") {
				continue
			}
			body, err := read(f)
			if err != nil {
				return nil, nil, err
			}
			images = append(images, Image{Name: base, Data: body})
		}
	}
	return snapshot, images, nil
}

var errEntryTooLarge = errors.New("archive entry too large")

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, invalid("archive", "open %s: %v", f.Name, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, invalid("archive", "read %s: %v", f.Name, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", errEntryTooLarge, f.Name, limit)
	}
	return body, nil
}
