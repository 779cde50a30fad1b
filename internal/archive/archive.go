// Package archive builds the tar blobs uploaded into judge containers.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Harsh-BH/alsit/internal/domain"
)

const sourceFileMode = 0o644

// SourceFileName returns the in-archive name of a submission's source file.
func SourceFileName(lang domain.Language) string {
	return "main" + lang.Extension()
}

// BuildSourceArchive packages content as a single file main<ext> in a tar stream.
// An error here means a broken encoding invariant, not bad user input.
func BuildSourceArchive(content []byte, lang domain.Language) ([]byte, error) {
	if !lang.IsValid() {
		return nil, fmt.Errorf("%w: build archive: %w", domain.ErrInternal, domain.ErrUnknownLanguage)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     SourceFileName(lang),
		Mode:     sourceFileMode,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0),
		Format:   tar.FormatGNU,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("%w: write tar header: %w", domain.ErrInternal, err)
	}
	if _, err := tw.Write(content); err != nil {
		return nil, fmt.Errorf("%w: write tar body: %w", domain.ErrInternal, err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("%w: close tar: %w", domain.ErrInternal, err)
	}
	return buf.Bytes(), nil
}

// Entry is one regular file read back from an archive.
type Entry struct {
	Name    string
	Content []byte
}

// ReadEntries unpacks every regular file in a tar blob.
func ReadEntries(blob []byte) ([]Entry, error) {
	tr := tar.NewReader(bytes.NewReader(blob))
	var out []Entry
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read tar entry %s: %w", hdr.Name, err)
		}
		out = append(out, Entry{Name: hdr.Name, Content: data})
	}
}

// TarEntries lists the regular file names in a tar blob.
func TarEntries(blob []byte) ([]string, error) {
	entries, err := ReadEntries(blob)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, nil
}
