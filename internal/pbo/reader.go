package pbo

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrChecksum = errors.New("checksum mismatch")

// Archive is a decoded PBO.
type Archive struct {
	Properties map[string]string
	Names      []string
	Files      map[string][]byte
}

type entry struct {
	name   string
	method uint32
	size   uint32
}

// Read decodes an uncompressed PBO and verifies its checksum.
func Read(r io.Reader) (*Archive, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < 21 {
		return nil, fmt.Errorf("archive too short: %d bytes", len(data))
	}

	body, trailer := data[:len(data)-21], data[len(data)-21:]
	if trailer[0] != 0 {
		return nil, fmt.Errorf("missing checksum marker")
	}
	if sum := sha1.Sum(body); !bytes.Equal(sum[:], trailer[1:]) {
		return nil, ErrChecksum
	}

	br := bufio.NewReader(bytes.NewReader(body))
	arc := &Archive{
		Properties: make(map[string]string),
		Files:      make(map[string][]byte),
	}

	first, err := readEntry(br)
	if err != nil {
		return nil, err
	}
	if first.method == methodVersion {
		for {
			key, err := readCString(br)
			if err != nil {
				return nil, err
			}
			if key == "" {
				break
			}
			val, err := readCString(br)
			if err != nil {
				return nil, err
			}
			arc.Properties[key] = val
		}
	}

	var entries []entry
	if first.method != methodVersion && first.name != "" {
		entries = append(entries, first)
	}
	for {
		e, err := readEntry(br)
		if err != nil {
			return nil, err
		}
		if e.name == "" {
			break
		}
		entries = append(entries, e)
	}

	for _, e := range entries {
		buf := make([]byte, e.size)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.name, err)
		}
		arc.Names = append(arc.Names, e.name)
		arc.Files[e.name] = buf
	}
	return arc, nil
}

func readEntry(br *bufio.Reader) (entry, error) {
	name, err := readCString(br)
	if err != nil {
		return entry{}, err
	}
	var b [20]byte
	if _, err := io.ReadFull(br, b[:]); err != nil {
		return entry{}, fmt.Errorf("reading header of %q: %w", name, err)
	}
	return entry{
		name:   name,
		method: binary.LittleEndian.Uint32(b[0:]),
		size:   binary.LittleEndian.Uint32(b[16:]),
	}, nil
}

func readCString(br *bufio.Reader) (string, error) {
	s, err := br.ReadString(0)
	if err != nil {
		return "", fmt.Errorf("reading string: %w", err)
	}
	return s[:len(s)-1], nil
}
