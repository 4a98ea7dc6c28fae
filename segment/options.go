package segment

import (
	"go.uber.org/zap"

	"github.com/flashdb/flashkv/codec"
)

// DefaultBlockSize is spec.md §6's BLOCK_SIZE_BYTES tuning constant.
const DefaultBlockSize = 10_000

// DefaultBlockCacheSize bounds the number of decompressed blocks kept in
// the in-memory LRU cache per Store.
const DefaultBlockCacheSize = 64

type options struct {
	blockSize      int
	compressor     codec.Compressor
	useMmap        bool
	blockCacheSize int
	logger         *zap.Logger
}

func defaultOptions() options {
	return options{
		blockSize:      DefaultBlockSize,
		compressor:     codec.IdentityCompressor{},
		useMmap:        true,
		blockCacheSize: DefaultBlockCacheSize,
		logger:         zap.NewNop(),
	}
}

// Option configures segment construction or loading, in the style of the
// teacher's segmentmanager.DiskSegmentManagerOption functional options.
type Option func(*options)

// WithBlockSize overrides BLOCK_SIZE_BYTES: a block is closed once its
// accumulated payload length first exceeds this many bytes.
func WithBlockSize(n int) Option {
	return func(o *options) { o.blockSize = n }
}

// WithCompressor overrides the block compress/decompress hook. Defaults to
// codec.IdentityCompressor, matching spec.md §4.1's default.
func WithCompressor(c codec.Compressor) Option {
	return func(o *options) { o.compressor = c }
}

// WithoutMmap falls back to per-operation open/seek/read/close for block
// reads instead of a persistent memory-mapped file.
func WithoutMmap() Option {
	return func(o *options) { o.useMmap = false }
}

// WithBlockCacheSize bounds the decompressed-block LRU cache. A size of 0
// disables the cache entirely.
func WithBlockCacheSize(n int) Option {
	return func(o *options) { o.blockCacheSize = n }
}

// WithLogger attaches a structured logger. It receives a warning when Scan
// stops early on a block read or decode error.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}
