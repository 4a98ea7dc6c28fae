// Package database is the Database façade from spec.md §4.6: it wires
// together the write-ahead log, the in-memory memtable, and the immutable
// on-disk segments into Get/Set, replaying the log at startup and
// flushing the memtable to a new segment once it grows past
// MAX_MEMORY_USAGE.
package database

import (
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flashdb/flashkv/codec"
	"github.com/flashdb/flashkv/kverrors"
	"github.com/flashdb/flashkv/logstore"
	"github.com/flashdb/flashkv/memtable"
	"github.com/flashdb/flashkv/segment"
)

// Database is a single-owner handle over one data directory. It is not
// safe for concurrent use; wrap it in Locked for that.
type Database struct {
	dir string

	mem *memtable.MemoryStore
	log *logstore.LogStore

	// segments is ordered most-recent-first: index 0 has the highest
	// sequence number and is consulted before older segments on Get.
	segments []*segment.Store
	nextSeq  uint64

	maxMemoryUsage int
	blockSize      int
	compressor     codec.Compressor
	useMmap        bool
	logger         *zap.Logger

	lock *flock.Flock
}

// Open opens (creating if necessary) the database rooted at dir: the
// write-ahead log is replayed into a fresh memtable, and every *.seg file
// already present is loaded for reads.
func Open(dir string, opts ...Option) (*Database, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := osMkdirAll(dir); err != nil {
		return nil, err
	}

	var lk *flock.Flock
	if o.useFlock {
		lk = flock.New(filepath.Join(dir, ".lock"))
		locked, err := lk.TryLock()
		if err != nil {
			return nil, kverrors.NewIOError(err, "failed to acquire database directory lock").WithPath(dir)
		}
		if !locked {
			return nil, kverrors.NewIOError(nil, "database directory is locked by another process").WithPath(dir)
		}
	}

	ls, err := logstore.Open(filepath.Join(dir, "write.log"), o.logger)
	if err != nil {
		return nil, err
	}

	mem := memtable.NewMemoryStore()
	records, err := ls.Replay()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		mem.Set(rec.Key, rec.Value)
	}

	segments, nextSeq, err := loadSegments(dir, o)
	if err != nil {
		return nil, err
	}

	db := &Database{
		dir:            dir,
		mem:            mem,
		log:            ls,
		segments:       segments,
		nextSeq:        nextSeq,
		maxMemoryUsage: o.maxMemoryUsage,
		blockSize:      o.blockSize,
		compressor:     o.compressor,
		useMmap:        o.useMmap,
		logger:         o.logger,
		lock:           lk,
	}

	db.logger.Debug("opened database",
		zap.String("dir", dir),
		zap.Int("replayed_records", len(records)),
		zap.Int("segments", len(segments)),
	)

	return db, nil
}

func loadSegments(dir string, o options) ([]*segment.Store, uint64, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.seg"))
	if err != nil {
		return nil, 0, kverrors.NewIOError(err, "failed to list segment files").WithPath(dir)
	}

	segOpts := segmentOptions(o)

	stores := make([]*segment.Store, 0, len(paths))
	var nextSeq uint64
	for _, p := range paths {
		s, err := segment.Load(p, segOpts...)
		if err != nil {
			return nil, 0, err
		}
		stores = append(stores, s)
		if s.SequenceNumber()+1 > nextSeq {
			nextSeq = s.SequenceNumber() + 1
		}
	}

	sort.Slice(stores, func(i, j int) bool {
		return stores[i].SequenceNumber() > stores[j].SequenceNumber()
	})

	return stores, nextSeq, nil
}

func segmentOptions(o options) []segment.Option {
	opts := []segment.Option{
		segment.WithCompressor(o.compressor),
		segment.WithLogger(o.logger),
	}
	if o.blockSize > 0 {
		opts = append(opts, segment.WithBlockSize(o.blockSize))
	}
	if !o.useMmap {
		opts = append(opts, segment.WithoutMmap())
	}
	return opts
}

// Set durably appends (key, value) to the write-ahead log, applies it to
// the memtable, and flushes to a new segment if the memtable has grown
// past MAX_MEMORY_USAGE.
//
// A log append failure is fatal to the write and is returned as-is; the
// memtable is left untouched. If the subsequent flush's segment creation
// fails, the memtable and log are both left intact, so the write remains
// durable (recoverable by replay) even though it is not yet reflected in
// a segment. If segment creation succeeds but the following log
// truncation fails, the segment and memtable reset still take effect
// (the data is already durable in the segment); only the stale,
// already-redundant log records are left untruncated.
func (db *Database) Set(key, value string) error {
	if err := db.log.Append(key, value); err != nil {
		return err
	}

	db.mem.Set(key, value)

	if db.mem.Usage() > db.maxMemoryUsage {
		if err := db.flush(); err != nil {
			return err
		}
	}

	return nil
}

// Get looks up key, consulting the memtable first, then segments from
// most to least recently flushed.
func (db *Database) Get(key string) (string, bool, error) {
	if v, ok := db.mem.Get(key); ok {
		return v, true, nil
	}

	for _, s := range db.segments {
		v, ok, err := s.Get(key)
		if err != nil {
			return "", false, err
		}
		if ok {
			return v, true, nil
		}
	}

	return "", false, nil
}

// Flush forces the current memtable to a new segment regardless of its
// usage, then truncates the write-ahead log. It is a no-op on an empty
// memtable.
func (db *Database) Flush() error {
	if db.mem.Usage() == 0 {
		return nil
	}
	return db.flush()
}

func (db *Database) flush() error {
	path := filepath.Join(db.dir, uuid.NewString()+".seg")
	seq := db.nextSeq

	s, err := segment.Create(path, seq, db.mem.Iter2(), segmentOptions(db.optionsSnapshot())...)
	if err != nil {
		db.logger.Warn("segment flush failed, memtable and log left intact",
			zap.String("path", path), zap.Error(err))
		return err
	}

	// The segment is now durable, so it is registered and the sequence
	// counter advanced immediately: otherwise a later log-truncation
	// failure below would leave nextSeq unchanged and a subsequent flush
	// would stamp a second segment with the same sequence number.
	db.nextSeq++
	db.segments = append([]*segment.Store{s}, db.segments...)
	db.mem = memtable.NewMemoryStore()

	if err := db.log.FlushAndTruncate(); err != nil {
		db.logger.Warn("write-ahead log truncation failed after successful flush",
			zap.Error(err))
		return err
	}

	db.logger.Debug("flushed memtable to segment", zap.String("path", path), zap.Uint64("sequence", seq))

	return nil
}

func (db *Database) optionsSnapshot() options {
	return options{
		maxMemoryUsage: db.maxMemoryUsage,
		blockSize:      db.blockSize,
		compressor:     db.compressor,
		logger:         db.logger,
		useMmap:        db.useMmap,
	}
}

// Segments returns the current on-disk segments, most recently flushed
// first. Used by callers that drive compaction themselves.
func (db *Database) Segments() []*segment.Store {
	out := make([]*segment.Store, len(db.segments))
	copy(out, db.segments)
	return out
}

// ReplaceSegments atomically swaps replaced for replacement in the
// Database's segment list, used after an external compaction run. Any
// segment in replaced that is not found is ignored.
func (db *Database) ReplaceSegments(replaced []*segment.Store, replacement *segment.Store) {
	drop := make(map[string]bool, len(replaced))
	for _, s := range replaced {
		drop[s.Path()] = true
	}

	kept := make([]*segment.Store, 0, len(db.segments))
	for _, s := range db.segments {
		if drop[s.Path()] {
			continue
		}
		kept = append(kept, s)
	}

	db.segments = append([]*segment.Store{replacement}, kept...)
	sort.Slice(db.segments, func(i, j int) bool {
		return db.segments[i].SequenceNumber() > db.segments[j].SequenceNumber()
	})
}

// Close releases the write-ahead log, every loaded segment, and the
// directory lock (if held).
func (db *Database) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(db.log.Close())
	for _, s := range db.segments {
		record(s.Close())
	}
	if db.lock != nil {
		record(db.lock.Unlock())
	}

	return firstErr
}
