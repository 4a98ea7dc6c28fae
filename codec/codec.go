// Package codec implements the length-prefixed byte-string framing shared
// by the write-ahead log and segment file formats, plus the pluggable
// block compress/decompress hook.
package codec

import (
	"encoding/binary"
	"io"

	"github.com/flashdb/flashkv/kverrors"
)

// MaxFrameLen caps a single decoded frame, rejecting corruption that would
// otherwise try to allocate an implausible amount of memory.
const MaxFrameLen = 64 << 20 // 64 MiB

// Encode frames b as an 8-byte little-endian length prefix followed by b.
func Encode(b []byte) []byte {
	out := make([]byte, 8+len(b))
	binary.LittleEndian.PutUint64(out[:8], uint64(len(b)))
	copy(out[8:], b)
	return out
}

// WriteFrame writes Encode(b) to w.
func WriteFrame(w io.Writer, b []byte) error {
	_, err := w.Write(Encode(b))
	return err
}

// Decode reads one length-prefixed frame from r.
func Decode(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	n := binary.LittleEndian.Uint64(lenBuf[:])
	if n > MaxFrameLen {
		return nil, kverrors.NewCorruptionError(nil, "frame length exceeds sanity bound")
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// Compressor is the pluggable block compress/decompress hook from
// spec.md §4.1. Implementations must be inverses of each other.
type Compressor interface {
	Compress(payload []byte) []byte
	Decompress(compressed []byte) ([]byte, error)
}

// IdentityCompressor is the spec-mandated default: a no-op.
type IdentityCompressor struct{}

func (IdentityCompressor) Compress(payload []byte) []byte { return payload }

func (IdentityCompressor) Decompress(compressed []byte) ([]byte, error) { return compressed, nil }
