package database

import (
	"go.uber.org/zap"

	"github.com/flashdb/flashkv/codec"
)

// DefaultMaxMemoryUsage is spec.md §6's MAX_MEMORY_USAGE tuning constant:
// the memtable is flushed to a new segment once its usage exceeds this.
const DefaultMaxMemoryUsage = 100_000

type options struct {
	maxMemoryUsage int
	blockSize      int
	compressor     codec.Compressor
	logger         *zap.Logger
	useFlock       bool
	useMmap        bool
}

func defaultOptions() options {
	return options{
		maxMemoryUsage: DefaultMaxMemoryUsage,
		blockSize:      0, // 0 means "let segment package use its own default"
		compressor:     codec.IdentityCompressor{},
		logger:         zap.NewNop(),
		useFlock:       false,
		useMmap:        true,
	}
}

// Option configures a Database, in the style of the teacher's
// segmentmanager.DiskSegmentManagerOption functional options.
type Option func(*options)

// WithMaxMemoryUsage overrides MAX_MEMORY_USAGE: the memtable is flushed
// once its logical usage (sum of len(key)+len(value)) exceeds n bytes.
func WithMaxMemoryUsage(n int) Option {
	return func(o *options) { o.maxMemoryUsage = n }
}

// WithBlockSize overrides the BLOCK_SIZE_BYTES used when writing new
// segments.
func WithBlockSize(n int) Option {
	return func(o *options) { o.blockSize = n }
}

// WithCompressor overrides the block compress/decompress hook used when
// writing new segments and when reading every segment this Database loads.
func WithCompressor(c codec.Compressor) Option {
	return func(o *options) { o.compressor = c }
}

// WithLogger attaches a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFlock takes an advisory exclusive lock on the database directory for
// the lifetime of the Database, guarding against two processes opening the
// same directory concurrently. spec.md does not mandate this but invites
// implementers to document the single-process assumption; this option
// enforces it instead.
func WithFlock() Option {
	return func(o *options) { o.useFlock = true }
}

// WithoutMmap disables memory-mapped segment reads in favor of per-call
// file I/O, propagated to every segment this Database loads or creates.
func WithoutMmap() Option {
	return func(o *options) { o.useMmap = false }
}
