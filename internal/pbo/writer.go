// Package pbo writes Arma PBO archives.
package pbo

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const (
	// methodVersion marks the product entry that carries the properties.
	methodVersion uint32 = 0x56657273
	methodNone    uint32 = 0
)

var (
	ErrDuplicateFile = errors.New("duplicate file name")
	ErrInvalidName   = errors.New("invalid file name")
)

type file struct {
	name string
	data []byte
}

// Writer accumulates files and properties and serializes them as a PBO.
// Files are stored uncompressed with zeroed timestamps, sorted by name, so
// the same inputs always produce the same bytes.
type Writer struct {
	props [][2]string
	files map[string]file
}

func NewWriter() *Writer {
	return &Writer{files: make(map[string]file)}
}

// SetProperty adds a header property such as "prefix". Setting an existing
// key replaces its value.
func (w *Writer) SetProperty(key, value string) {
	for i, p := range w.props {
		if p[0] == key {
			w.props[i][1] = value
			return
		}
	}
	w.props = append(w.props, [2]string{key, value})
}

// AddFile adds a file. Names use backslash separators inside the archive;
// forward slashes are converted.
func (w *Writer) AddFile(name string, data []byte) error {
	name = strings.ReplaceAll(name, "/", `\`)
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	key := strings.ToLower(name)
	if _, ok := w.files[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFile, name)
	}
	w.files[key] = file{name: name, data: data}
	return nil
}

// Len reports the number of files added.
func (w *Writer) Len() int { return len(w.files) }

// WriteTo serializes the archive, including the trailing SHA-1 checksum.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	var buf bytes.Buffer

	// product entry
	buf.WriteByte(0)
	writeHeaderFields(&buf, methodVersion, 0, 0)
	for _, p := range w.props {
		buf.WriteString(p[0])
		buf.WriteByte(0)
		buf.WriteString(p[1])
		buf.WriteByte(0)
	}
	buf.WriteByte(0)

	files := w.sorted()
	for _, f := range files {
		buf.WriteString(f.name)
		buf.WriteByte(0)
		writeHeaderFields(&buf, methodNone, 0, uint32(len(f.data)))
	}

	// terminating entry
	buf.WriteByte(0)
	writeHeaderFields(&buf, methodNone, 0, 0)

	for _, f := range files {
		buf.Write(f.data)
	}

	sum := sha1.Sum(buf.Bytes())
	buf.WriteByte(0)
	buf.Write(sum[:])

	return buf.WriteTo(out)
}

func (w *Writer) sorted() []file {
	files := make([]file, 0, len(w.files))
	for _, f := range w.files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(files[i].name) < strings.ToLower(files[j].name)
	})
	return files
}

// writeHeaderFields writes method, original size, reserved, timestamp and
// data size as little-endian uint32s.
func writeHeaderFields(buf *bytes.Buffer, method, original, size uint32) {
	var b [20]byte
	binary.LittleEndian.PutUint32(b[0:], method)
	binary.LittleEndian.PutUint32(b[4:], original)
	binary.LittleEndian.PutUint32(b[16:], size)
	buf.Write(b[:])
}
