package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var flatMagic = [8]byte{'R', 'P', 'F', 'L', 'A', 'T', '0', '1'}

// maxDim guards against allocating from a corrupt header.
const maxDim = 1 << 16

// WriteFlat serializes f: magic, uint32 dim, uint64 count, then count*dim
// little-endian float32 values.
func WriteFlat(w io.Writer, f *Flat) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(flatMagic[:]); err != nil {
		return err
	}

	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(f.dim))
	binary.LittleEndian.PutUint64(hdr[4:12], uint64(f.Len()))
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}

	var buf [4]byte
	for _, v := range f.data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadFlat decodes an index written by WriteFlat.
func ReadFlat(r io.Reader) (*Flat, error) {
	br := bufio.NewReader(r)

	var magic [8]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != flatMagic {
		return nil, errors.New("not a flat index file")
	}

	var hdr [12]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	dim := binary.LittleEndian.Uint32(hdr[0:4])
	count := binary.LittleEndian.Uint64(hdr[4:12])
	if dim > maxDim {
		return nil, fmt.Errorf("implausible dimension %d", dim)
	}
	if dim == 0 && count > 0 {
		return nil, fmt.Errorf("%d vectors of dimension 0", count)
	}

	f := NewFlat(int(dim))
	if count == 0 {
		return f, nil
	}

	total := count * uint64(dim)
	if total > math.MaxInt32 {
		return nil, fmt.Errorf("implausible vector count %d", count)
	}
	f.data = make([]float32, 0, total)

	var buf [4]byte
	for i := uint64(0); i < total; i++ {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return nil, fmt.Errorf("read vector data: %w", err)
		}
		f.data = append(f.data, math.Float32frombits(binary.LittleEndian.Uint32(buf[:])))
	}
	return f, nil
}
