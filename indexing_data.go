package logview

import (
	"crypto/md5"
	"hash"
	"sync"

	"github.com/oarkflow/logview/codec"
	"github.com/oarkflow/logview/linepos"
)

// IndexedHash fingerprints the file identity: an MD5 digest over the first
// Size bytes, where Size never exceeds the configured prefix bound.
type IndexedHash struct {
	Size   int64
	Digest []byte
}

// IndexingData is the thread-safe aggregate shared between the running
// operation (writer) and any reader. One mutex guards every field so a
// reader observes each AddAll contribution atomically.
type IndexingData struct {
	mu sync.Mutex

	linePosition *linepos.Array
	maxLength    int

	hasher     hash.Hash
	hash       IndexedHash
	prefixSize int64

	// processedSize is the highest file offset any block has covered,
	// including an unterminated trailing line that produced no entry in
	// linePosition.
	processedSize int64

	encodingGuess  *codec.Codec
	encodingForced *codec.Codec
}

func NewIndexingData(prefixHashSize int64) *IndexingData {
	if prefixHashSize <= 0 {
		prefixHashSize = DefaultPrefixHashSize
	}
	return &IndexingData{
		linePosition: linepos.New(),
		hasher:       md5.New(),
		prefixSize:   prefixHashSize,
	}
}

// AddAll folds one parsed block into the aggregate: appends the discovered
// line ends, extends the identity hash, raises the max line length and
// records the encoding guess. blockStart is the absolute file offset of the
// block's first byte; the hash only consumes bytes at exactly its current
// frontier, so a partial pass re-reading an unterminated tail never hashes
// the same byte twice.
func (d *IndexingData) AddAll(blockStart int64, block []byte, maxLength int, fast *linepos.Fast, enc *codec.Codec) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.linePosition.AppendBatch(fast); err != nil {
		return err
	}

	if d.hash.Size < d.prefixSize && blockStart <= d.hash.Size && d.hash.Size < blockStart+int64(len(block)) {
		chunk := block[d.hash.Size-blockStart:]
		if room := d.prefixSize - d.hash.Size; int64(len(chunk)) > room {
			chunk = chunk[:room]
		}
		d.hasher.Write(chunk)
		d.hash.Size += int64(len(chunk))
		d.hash.Digest = d.hasher.Sum(nil)
	}

	if end := blockStart + int64(len(block)); end > d.processedSize {
		d.processedSize = end
	}
	if maxLength > d.maxLength {
		d.maxLength = maxLength
	}
	if enc != nil {
		d.encodingGuess = enc
	}
	return nil
}

// Clear resets every field and re-initializes the hash.
func (d *IndexingData) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.linePosition.Clear()
	d.maxLength = 0
	d.hasher = md5.New()
	d.hash = IndexedHash{}
	d.processedSize = 0
	d.encodingGuess = nil
}

// GetSize returns the total indexed byte size: the end offset of the last
// terminated line, or zero when no line has been indexed.
func (d *IndexingData) GetSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.linePosition.LastOrZero()
}

// GetProcessedSize returns how many leading bytes of the file the index has
// seen, including an unterminated trailing line.
func (d *IndexingData) GetProcessedSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.processedSize
}

func (d *IndexingData) GetNbLines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.linePosition.Len()
}

// GetMaxLength returns the longest observed line length in code points of
// the indexed encoding, tabs expanded.
func (d *IndexingData) GetMaxLength() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxLength
}

// GetPosForLine returns the end offset of the given line. The line's start
// offset is GetPosForLine(line-1), or zero for the first line.
func (d *IndexingData) GetPosForLine(line int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.linePosition.At(line)
}

func (d *IndexingData) GetHash() IndexedHash {
	d.mu.Lock()
	defer d.mu.Unlock()
	digest := make([]byte, len(d.hash.Digest))
	copy(digest, d.hash.Digest)
	return IndexedHash{Size: d.hash.Size, Digest: digest}
}

func (d *IndexingData) GetEncodingGuess() *codec.Codec {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.encodingGuess
}

func (d *IndexingData) GetForcedEncoding() *codec.Codec {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.encodingForced
}

// ForceEncoding stores a codec that overrides the guess for presentation.
// The index itself is not modified.
func (d *IndexingData) ForceEncoding(c *codec.Codec) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.encodingForced = c
}

// EffectiveEncoding returns the forced codec when set, the guess otherwise,
// and the default codec when nothing has been indexed yet.
func (d *IndexingData) EffectiveEncoding() *codec.Codec {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.encodingForced != nil {
		return d.encodingForced
	}
	if d.encodingGuess != nil {
		return d.encodingGuess
	}
	return codec.Default()
}

// SnapshotIndex returns a cheap read-only copy of the line-position array
// for range reads without repeated locking. Callers must not hold it across
// a Clear if they expect a consistent view with other accessors.
func (d *IndexingData) SnapshotIndex() *linepos.Array {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.linePosition.Snapshot()
}
