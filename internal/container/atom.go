// Package container adapts cromedia's MP4 atom/box model into the probe
// step the decoder adapter needs in spec.md §4.4: "probes stream info,
// picks the video stream, computes timeBase, frameRate, and totalFrames."
// Pixel decode itself is delegated to internal/libav; this package only
// walks the container structure to recover track geometry, timing, and
// exact keyframe byte offsets for the seek policy.
package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// containerAtoms lists the box types Probe recurses into.
var containerAtoms = map[string]bool{
	"moov": true, "trak": true, "mdia": true, "minf": true,
	"dinf": true, "stbl": true, "mvex": true, "edts": true,
}

// Atom is an MP4 box: a type tag, its byte extent, and any children found
// by recursing into container box types.
type Atom struct {
	Offset   int64
	Size     int64
	Type     string
	Children []Atom
}

func (a Atom) String() string {
	return fmt.Sprintf("[%s] @ %d (size %d)", a.Type, a.Offset, a.Size)
}

// Child returns the first direct child of the given type, or nil.
func (a Atom) Child(typ string) *Atom {
	for i := range a.Children {
		if a.Children[i].Type == typ {
			return &a.Children[i]
		}
	}
	return nil
}

// Probe walks file's atom tree without reading payloads.
func Probe(file *os.File) ([]Atom, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	return parseAtoms(file, 0, info.Size())
}

func parseAtoms(file *os.File, start, end int64) ([]Atom, error) {
	var atoms []Atom
	offset := start

	for offset < end {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
		header := make([]byte, 8)
		if _, err := io.ReadFull(file, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}

		size := int64(binary.BigEndian.Uint32(header[0:4]))
		typ := string(header[4:8])
		headerSize := int64(8)

		if size == 1 {
			ext := make([]byte, 8)
			if _, err := io.ReadFull(file, ext); err != nil {
				return nil, err
			}
			size = int64(binary.BigEndian.Uint64(ext))
			headerSize = 16
		}
		if size == 0 {
			size = end - offset
		}

		atom := Atom{Offset: offset, Size: size, Type: typ}
		if containerAtoms[typ] {
			children, err := parseAtoms(file, offset+headerSize, offset+size)
			if err != nil {
				return nil, fmt.Errorf("container: parsing children of %s at %d: %w", typ, offset, err)
			}
			atom.Children = children
		}

		atoms = append(atoms, atom)
		offset += size
	}
	return atoms, nil
}

// Find returns the first atom of typ among atoms (non-recursive).
func Find(atoms []Atom, typ string) *Atom {
	for i := range atoms {
		if atoms[i].Type == typ {
			return &atoms[i]
		}
	}
	return nil
}

func readPayload(f *os.File, atom *Atom) ([]byte, error) {
	if _, err := f.Seek(atom.Offset+8, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, atom.Size-8)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFullBoxHeader(r io.Reader) (version uint8, flags uint32, err error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, 0, err
	}
	val := binary.BigEndian.Uint32(buf)
	return uint8(val >> 24), val & 0x00FFFFFF, nil
}
