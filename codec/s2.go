package codec

import "github.com/klauspost/compress/s2"

// S2Compressor is a real, swappable alternative to IdentityCompressor,
// proving that the compress/decompress hook is genuinely pluggable.
// Segment construction does not use this by default — see segment.WithCompressor.
type S2Compressor struct{}

func (S2Compressor) Compress(payload []byte) []byte {
	return s2.Encode(nil, payload)
}

func (S2Compressor) Decompress(compressed []byte) ([]byte, error) {
	return s2.Decode(nil, compressed)
}
