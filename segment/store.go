// Package segment implements the immutable on-disk sorted table from
// spec.md §4.4/§6: an 8-byte sequence-number header followed by a stream
// of framed (first_key, compressed payload) blocks, plus an in-memory
// sparse index over block offsets built on load.
//
// Two read-path optimizations sit on top without changing the on-disk
// bytes or point-lookup semantics: an in-memory bloom filter rules out
// absent keys before the index is even searched, and a memory-mapped
// file (falling back to per-call open/seek/read/close via WithoutMmap)
// backs block reads. Decompressed blocks are cached by offset.
package segment

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"iter"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/edsrzf/mmap-go"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/flashdb/flashkv/codec"
	"github.com/flashdb/flashkv/kverrors"
)

// headerSize is the width of the sequence-number header at the start of
// every segment file.
const headerSize = 8

// Store is a read path over one immutable segment file.
type Store struct {
	path       string
	seq        uint64
	index      []indexEntry
	compressor codec.Compressor
	bloom      *bloom.BloomFilter

	useMmap  bool
	mmapData mmap.MMap
	file     *os.File // kept open only to back mmapData

	cache *lru.Cache[int64, []byte]

	logger *zap.Logger
}

// Create writes a new segment file at path from entries, which must yield
// (key, value) pairs in strictly ascending key order, then loads it for
// reading. seq is recorded verbatim in the header and is also the value
// returned by SequenceNumber.
func Create(path string, seq uint64, entries iter.Seq2[string, string], opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := writeSegmentFile(path, seq, entries, o); err != nil {
		return nil, err
	}

	return Load(path, opts...)
}

func writeSegmentFile(path string, seq uint64, entries iter.Seq2[string, string], o options) error {
	f, err := os.Create(path)
	if err != nil {
		return kverrors.NewIOError(err, "failed to create segment file").WithPath(path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	var seqBuf [headerSize]byte
	binary.LittleEndian.PutUint64(seqBuf[:], seq)
	if _, err := w.Write(seqBuf[:]); err != nil {
		return kverrors.NewIOError(err, "failed to write segment header").WithPath(path)
	}

	var payload bytes.Buffer
	var firstKey string
	have := false

	flush := func() error {
		if payload.Len() == 0 {
			return nil
		}
		compressed := o.compressor.Compress(payload.Bytes())
		if err := codec.WriteFrame(w, []byte(firstKey)); err != nil {
			return kverrors.NewIOError(err, "failed to write block key frame").WithPath(path)
		}
		if err := codec.WriteFrame(w, compressed); err != nil {
			return kverrors.NewIOError(err, "failed to write block payload frame").WithPath(path)
		}
		payload.Reset()
		have = false
		return nil
	}

	var writeErr error
	entries(func(k, v string) bool {
		if !have {
			firstKey = k
			have = true
		}
		payload.Write(codec.Encode([]byte(k)))
		payload.Write(codec.Encode([]byte(v)))

		if payload.Len() > o.blockSize {
			if err := flush(); err != nil {
				writeErr = err
				return false
			}
		}
		return true
	})
	if writeErr != nil {
		return writeErr
	}
	if err := flush(); err != nil {
		return err
	}

	if err := w.Flush(); err != nil {
		return kverrors.NewIOError(err, "failed to flush segment file").WithPath(path)
	}
	if err := f.Sync(); err != nil {
		return kverrors.NewIOError(err, "failed to sync segment file").WithPath(path)
	}

	return nil
}

// Load opens an existing segment file, scanning it once to rebuild the
// sparse index and bloom filter, then wires up the configured read path
// (mmap or per-call file I/O).
func Load(path string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, kverrors.NewIOError(err, "failed to open segment file").WithPath(path)
	}

	var seqBuf [headerSize]byte
	if _, err := io.ReadFull(f, seqBuf[:]); err != nil {
		f.Close()
		return nil, kverrors.NewCorruptionError(err, "failed to read segment header").WithPath(path)
	}
	seq := binary.LittleEndian.Uint64(seqBuf[:])

	var index []indexEntry
	filter := bloom.NewWithEstimates(1024, 0.01)

	br := bufio.NewReader(f)
	offset := int64(headerSize)
	for {
		start := offset

		keyFrame, n, err := decodeFrameCounted(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			f.Close()
			return nil, kverrors.NewCorruptionError(err, "failed to read block key frame").WithPath(path).WithOffset(offset)
		}
		offset += n

		compressed, n, err := decodeFrameCounted(br)
		if err != nil {
			f.Close()
			return nil, kverrors.NewCorruptionError(err, "failed to read block payload frame").WithPath(path).WithOffset(offset)
		}
		offset += n

		payload, err := o.compressor.Decompress(compressed)
		if err != nil {
			f.Close()
			return nil, kverrors.NewCorruptionError(err, "failed to decompress block").WithPath(path).WithOffset(start)
		}

		pr := bytes.NewReader(payload)
		for {
			kb, err := codec.Decode(pr)
			if err == io.EOF {
				break
			}
			if err != nil {
				f.Close()
				return nil, kverrors.NewCorruptionError(err, "corrupt block payload").WithPath(path).WithOffset(start)
			}
			if _, err := codec.Decode(pr); err != nil {
				f.Close()
				return nil, kverrors.NewCorruptionError(err, "corrupt block payload").WithPath(path).WithOffset(start)
			}
			filter.Add(kb)
		}

		index = append(index, indexEntry{key: string(keyFrame), offset: start})
	}

	s := &Store{
		path:       path,
		seq:        seq,
		index:      index,
		compressor: o.compressor,
		bloom:      filter,
		useMmap:    o.useMmap,
		logger:     o.logger,
	}

	if o.blockCacheSize > 0 {
		cache, _ := lru.New[int64, []byte](o.blockCacheSize)
		s.cache = cache
	}

	if o.useMmap {
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			return nil, kverrors.NewIOError(err, "failed to mmap segment file").WithPath(path)
		}
		s.mmapData = m
		s.file = f
	} else {
		f.Close()
	}

	return s, nil
}

func decodeFrameCounted(r io.Reader) ([]byte, int64, error) {
	b, err := codec.Decode(r)
	if err != nil {
		return nil, 0, err
	}
	return b, int64(headerSize + len(b)), nil
}

// SequenceNumber returns the sequence number recorded in this segment's
// header.
func (s *Store) SequenceNumber() uint64 { return s.seq }

// Path returns the filesystem path backing this Store.
func (s *Store) Path() string { return s.path }

// Get looks up key, first consulting the bloom filter (a negative there is
// conclusive), then the sparse index, then the candidate block.
func (s *Store) Get(key string) (string, bool, error) {
	if s.bloom != nil && !s.bloom.Test([]byte(key)) {
		return "", false, nil
	}

	entry, ok := closestBefore(key, s.index)
	if !ok {
		return "", false, nil
	}

	payload, err := s.blockPayloadAt(entry.offset)
	if err != nil {
		return "", false, err
	}

	r := bytes.NewReader(payload)
	for {
		kb, err := codec.Decode(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", false, kverrors.NewCorruptionError(err, "corrupt block payload").WithPath(s.path).WithOffset(entry.offset)
		}
		vb, err := codec.Decode(r)
		if err != nil {
			return "", false, kverrors.NewCorruptionError(err, "corrupt block payload").WithPath(s.path).WithOffset(entry.offset)
		}
		if string(kb) == key {
			return string(vb), true, nil
		}
	}

	return "", false, nil
}

// Scan yields every (key, value) pair in the segment in ascending key
// order, by reading blocks in file order and decoding each in turn. An
// empty index (an empty segment) yields nothing, fixing the empty-index
// iterator bug noted in spec.md §9(b).
func (s *Store) Scan() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, e := range s.index {
			payload, err := s.blockPayloadAt(e.offset)
			if err != nil {
				s.logger.Warn("segment scan aborted", zap.String("path", s.path), zap.Error(err))
				return
			}

			r := bytes.NewReader(payload)
			for {
				kb, err := codec.Decode(r)
				if err == io.EOF {
					break
				}
				if err != nil {
					s.logger.Warn("segment scan block corrupt", zap.String("path", s.path), zap.Error(err))
					return
				}
				vb, err := codec.Decode(r)
				if err != nil {
					s.logger.Warn("segment scan block corrupt", zap.String("path", s.path), zap.Error(err))
					return
				}
				if !yield(string(kb), string(vb)) {
					return
				}
			}
		}
	}
}

// blockPayloadAt returns the decompressed payload of the block whose
// framed first_key begins at offset, consulting and populating the
// decoded-block cache.
func (s *Store) blockPayloadAt(offset int64) ([]byte, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(offset); ok {
			return cached, nil
		}
	}

	var r io.Reader
	closeFn := func() error { return nil }

	if s.useMmap {
		if offset < 0 || offset >= int64(len(s.mmapData)) {
			return nil, kverrors.NewCorruptionError(nil, "block offset out of range").WithPath(s.path).WithOffset(offset)
		}
		r = bytes.NewReader(s.mmapData[offset:])
	} else {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, kverrors.NewIOError(err, "failed to open segment for block read").WithPath(s.path)
		}
		closeFn = f.Close
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, kverrors.NewIOError(err, "failed to seek segment").WithPath(s.path)
		}
		r = bufio.NewReader(f)
	}
	defer closeFn()

	if _, err := codec.Decode(r); err != nil {
		return nil, kverrors.NewCorruptionError(err, "failed to read block key frame").WithPath(s.path).WithOffset(offset)
	}
	compressed, err := codec.Decode(r)
	if err != nil {
		return nil, kverrors.NewCorruptionError(err, "failed to read block payload frame").WithPath(s.path).WithOffset(offset)
	}

	payload, err := s.compressor.Decompress(compressed)
	if err != nil {
		return nil, kverrors.NewCorruptionError(err, "failed to decompress block").WithPath(s.path).WithOffset(offset)
	}

	if s.cache != nil {
		s.cache.Add(offset, payload)
	}

	return payload, nil
}

// Close releases the mmap (if any) and the backing file handle.
func (s *Store) Close() error {
	if s.mmapData != nil {
		if err := s.mmapData.Unmap(); err != nil {
			return kverrors.NewIOError(err, "failed to unmap segment file").WithPath(s.path)
		}
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return kverrors.NewIOError(err, "failed to close segment file").WithPath(s.path)
		}
	}
	return nil
}

// Delete closes the Store and removes its backing file. Neither
// compact.Compact nor Database.ReplaceSegments calls it: removing the input
// segments of a compaction is left to the caller.
func (s *Store) Delete() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil {
		return kverrors.NewIOError(err, "failed to remove segment file").WithPath(s.path)
	}
	return nil
}
