// Package logstore implements the append-only write-ahead log from
// spec.md §4.3: one record per line, escaped text, replayed at Database
// startup to recover the MemoryStore.
package logstore

import (
	"bufio"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/flashdb/flashkv/kverrors"
)

// Record is a single (key, value) write recorded in the log, in write
// order. A key may repeat across records.
type Record struct {
	Key   string
	Value string
}

// LogStore is the append-only WAL at <dir>/write.log. It holds a single
// long-lived append-mode file handle, reopened on FlushAndTruncate.
type LogStore struct {
	path   string
	f      *os.File
	logger *zap.Logger
}

// Open creates the log file if missing and opens it for append.
func Open(path string, logger *zap.Logger) (*LogStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, kverrors.NewIOError(err, "failed to open write-ahead log").WithPath(path)
	}

	return &LogStore{path: path, f: f, logger: logger}, nil
}

// Append writes one record. A partial write is reported as a
// LogWriteError; the caller must treat it as a failed write.
func (l *LogStore) Append(key, value string) error {
	entry := serialize(key) + "\t" + serialize(value) + "\n"

	n, err := l.f.WriteString(entry)
	if n > 0 && n < len(entry) {
		return kverrors.NewLogWriteError(err, "short write to write-ahead log")
	}
	if err != nil {
		return kverrors.NewIOError(err, "failed to append to write-ahead log").WithPath(l.path)
	}
	if n != len(entry) {
		return kverrors.NewLogWriteError(nil, "short write to write-ahead log")
	}

	if err := l.f.Sync(); err != nil {
		return kverrors.NewIOError(err, "failed to sync write-ahead log").WithPath(l.path)
	}

	return nil
}

// Replay reads every record from the start of the log, in write order.
// A malformed line is reported as a CorruptionError rather than a panic
// (spec.md §9(c)).
func (l *LogStore) Replay() ([]Record, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, kverrors.NewIOError(err, "failed to open write-ahead log for replay").WithPath(l.path)
	}
	defer f.Close()

	var records []Record

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64<<20)

	lineNo := int64(0)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}

		rec, err := parseLine(line)
		if err != nil {
			return nil, kverrors.NewCorruptionError(err, "malformed write-ahead log line").
				WithPath(l.path).WithOffset(lineNo)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, kverrors.NewIOError(err, "failed reading write-ahead log").WithPath(l.path)
	}

	l.logger.Debug("replayed write-ahead log", zap.String("path", l.path), zap.Int("records", len(records)))

	return records, nil
}

// FlushAndTruncate durably syncs outstanding data, truncates the log to
// zero length, and reopens it in append mode. It must only be called
// after a SegmentStore covering all currently-logged records has been
// durably created.
func (l *LogStore) FlushAndTruncate() error {
	if err := l.f.Sync(); err != nil {
		return kverrors.NewIOError(err, "failed to sync write-ahead log before truncation").WithPath(l.path)
	}
	if err := l.f.Close(); err != nil {
		return kverrors.NewIOError(err, "failed to close write-ahead log before truncation").WithPath(l.path)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_TRUNC|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return kverrors.NewIOError(err, "failed to reopen write-ahead log after truncation").WithPath(l.path)
	}
	l.f = f

	l.logger.Debug("truncated write-ahead log", zap.String("path", l.path))

	return nil
}

// Close releases the underlying file handle.
func (l *LogStore) Close() error {
	if err := l.f.Close(); err != nil {
		return kverrors.NewIOError(err, "failed to close write-ahead log").WithPath(l.path)
	}
	return nil
}

func parseLine(line string) (Record, error) {
	idx := strings.IndexByte(line, '\t')
	if idx < 0 {
		return Record{}, kverrors.NewCorruptionError(nil, "missing field separator")
	}

	key, err := deserialize(line[:idx])
	if err != nil {
		return Record{}, err
	}
	value, err := deserialize(line[idx+1:])
	if err != nil {
		return Record{}, err
	}

	return Record{Key: key, Value: value}, nil
}

// serialize escapes backslash, newline, and tab so a record fits on one
// line of text.
func serialize(s string) string {
	if !strings.ContainsAny(s, "\\\n\t") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// deserialize inverts serialize.
func deserialize(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' {
			b.WriteRune(r)
			continue
		}

		if i+1 >= len(runes) {
			return "", kverrors.NewCorruptionError(nil, "trailing escape character")
		}

		switch runes[i+1] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case '\\':
			b.WriteByte('\\')
		default:
			return "", kverrors.NewCorruptionError(nil, "invalid escape sequence")
		}
		i++
	}

	return b.String(), nil
}
