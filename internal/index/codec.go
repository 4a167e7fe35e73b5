package index

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/524D/mzsearch/internal/proteomics"
)

var (
	peptideMagic  = [8]byte{'M', 'Z', 'S', 'P', 'E', 'P', 0, 1}
	fragmentMagic = [8]byte{'M', 'Z', 'S', 'F', 'R', 'G', 0, 1}
)

var (
	// ErrBadMagic means the stream is not an index file of the expected kind
	ErrBadMagic = errors.New("not an index file")
	// ErrSchemaVersion means the file was written by an incompatible version
	ErrSchemaVersion = errors.New("index schema version mismatch")
	// ErrFingerprintMismatch means the file was built from other parameters
	ErrFingerprintMismatch = errors.New("index fingerprint mismatch")
	// ErrCorrupt means the body could not be decoded
	ErrCorrupt = errors.New("corrupt index file")
)

var byteOrder = binary.LittleEndian

const headerSize = 8 + 2 + sha256.Size

// maxLadderLength bounds the fragment ladder read for one peptide; longer
// is taken as corruption
const maxLadderLength = 1 << 24

func writeHeader(w io.Writer, magic [8]byte, fp Fingerprint) error {
	var hdr [headerSize]byte
	copy(hdr[:8], magic[:])
	byteOrder.PutUint16(hdr[8:10], SchemaVersion)
	copy(hdr[10:], fp[:])
	_, err := w.Write(hdr[:])
	return err
}

func readHeader(r io.Reader, magic [8]byte, want Fingerprint) error {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if !bytes.Equal(hdr[:8], magic[:]) {
		return ErrBadMagic
	}
	if v := byteOrder.Uint16(hdr[8:10]); v != SchemaVersion {
		return fmt.Errorf("%w: file has %d, want %d", ErrSchemaVersion, v, SchemaVersion)
	}
	var got Fingerprint
	copy(got[:], hdr[10:])
	if got != want {
		return fmt.Errorf("%w: file has %s, want %s", ErrFingerprintMismatch, got, want)
	}
	return nil
}

// writeBody compresses whatever fill writes
func writeBody(w io.Writer, fill func(*bufio.Writer) error) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)
	if err := fill(bw); err != nil {
		enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func appendFloats(buf []byte, fs []float64) []byte {
	buf = byteOrder.AppendUint32(buf, uint32(len(fs)))
	for _, f := range fs {
		buf = byteOrder.AppendUint64(buf, math.Float64bits(f))
	}
	return buf
}

// WritePeptideIndex writes the compact peptides in ordinal order
func (x *Index) WritePeptideIndex(w io.Writer) error {
	if err := writeHeader(w, peptideMagic, x.Fingerprint); err != nil {
		return err
	}
	return writeBody(w, func(bw *bufio.Writer) error {
		var buf []byte
		buf = byteOrder.AppendUint32(buf, uint32(len(x.Peptides)))
		for _, p := range x.Peptides {
			buf = byteOrder.AppendUint64(buf, p.BaseHash)
			buf = byteOrder.AppendUint64(buf, math.Float64bits(p.MonoisotopicMass))
			buf = appendFloats(buf, p.NTerminalMasses)
			buf = appendFloats(buf, p.CTerminalMasses)
			if _, err := bw.Write(buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
		_, err := bw.Write(buf)
		return err
	})
}

// WriteFragmentIndex writes the bucket table
func (x *Index) WriteFragmentIndex(w io.Writer) error {
	if err := writeHeader(w, fragmentMagic, x.Fingerprint); err != nil {
		return err
	}
	return writeBody(w, func(bw *bufio.Writer) error {
		var buf []byte
		buf = byteOrder.AppendUint32(buf, uint32(x.BinsPerDalton))
		buf = byteOrder.AppendUint32(buf, uint32(len(x.Keys)))
		for i, k := range x.Keys {
			buf = byteOrder.AppendUint32(buf, uint32(k))
			buf = byteOrder.AppendUint32(buf, uint32(len(x.Candidates[i])))
			for _, c := range x.Candidates[i] {
				buf = byteOrder.AppendUint32(buf, uint32(c))
			}
			if _, err := bw.Write(buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
		_, err := bw.Write(buf)
		return err
	})
}

type bodyReader struct {
	r   io.Reader
	buf [8]byte
	err error
}

func (b *bodyReader) u32() uint32 {
	if b.err != nil {
		return 0
	}
	if _, b.err = io.ReadFull(b.r, b.buf[:4]); b.err != nil {
		return 0
	}
	return byteOrder.Uint32(b.buf[:4])
}

func (b *bodyReader) u64() uint64 {
	if b.err != nil {
		return 0
	}
	if _, b.err = io.ReadFull(b.r, b.buf[:8]); b.err != nil {
		return 0
	}
	return byteOrder.Uint64(b.buf[:8])
}

func (b *bodyReader) floats() []float64 {
	n := b.u32()
	if n == 0 || b.err != nil {
		return nil
	}
	if n > maxLadderLength {
		b.err = fmt.Errorf("ladder of %d masses", n)
		return nil
	}
	fs := make([]float64, n)
	for i := range fs {
		fs[i] = math.Float64frombits(b.u64())
	}
	return fs
}

func openBody(r io.Reader) (*zstd.Decoder, *bodyReader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return dec, &bodyReader{r: bufio.NewReader(dec)}, nil
}

// ReadIndex reads a peptide index and a fragment index written for want
func ReadIndex(peptides, fragments io.Reader, want Fingerprint) (*Index, error) {
	x := &Index{Fingerprint: want}

	if err := readHeader(peptides, peptideMagic, want); err != nil {
		return nil, err
	}
	dec, br, err := openBody(peptides)
	if err != nil {
		return nil, err
	}
	n := br.u32()
	for i := uint32(0); i < n && br.err == nil; i++ {
		var p proteomics.CompactPeptide
		p.BaseHash = br.u64()
		p.MonoisotopicMass = math.Float64frombits(br.u64())
		p.NTerminalMasses = br.floats()
		p.CTerminalMasses = br.floats()
		x.Peptides = append(x.Peptides, p)
	}
	dec.Close()
	if br.err != nil {
		return nil, fmt.Errorf("%w: peptides: %v", ErrCorrupt, br.err)
	}

	if err := readHeader(fragments, fragmentMagic, want); err != nil {
		return nil, err
	}
	dec, br, err = openBody(fragments)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	x.BinsPerDalton = int(br.u32())
	nk := br.u32()
	for i := uint32(0); i < nk && br.err == nil; i++ {
		x.Keys = append(x.Keys, int32(br.u32()))
		nc := br.u32()
		var cands []int32
		for j := uint32(0); j < nc && br.err == nil; j++ {
			c := br.u32()
			if int(c) >= len(x.Peptides) {
				return nil, fmt.Errorf("%w: candidate %d out of range", ErrCorrupt, c)
			}
			cands = append(cands, int32(c))
		}
		x.Candidates = append(x.Candidates, cands)
	}
	if br.err != nil {
		return nil, fmt.Errorf("%w: fragments: %v", ErrCorrupt, br.err)
	}
	if x.BinsPerDalton <= 0 {
		return nil, fmt.Errorf("%w: bins per dalton %d", ErrCorrupt, x.BinsPerDalton)
	}
	return x, nil
}
