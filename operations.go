package logview

import (
	"bytes"
	"crypto/md5"
	"errors"
	"io"
	"os"
	"sync/atomic"

	"github.com/oarkflow/log"

	"github.com/oarkflow/logview/codec"
	"github.com/oarkflow/logview/linepos"
	"github.com/oarkflow/logview/storage"
)

// operation is the contract shared by the three index operations. Start
// blocks until the operation completes, is interrupted or fails; all
// outcomes are carried in the result, never raised across goroutines.
type operation interface {
	Start() OperationResult
}

// indexOperation carries what every operation needs: the target path, the
// shared indexing data (owned elsewhere, outliving the operation), the
// interrupt flag polled between blocks and a progress sink.
type indexOperation struct {
	path      string
	data      *IndexingData
	interrupt *atomic.Bool
	source    storage.Source
	cfg       Config
	progress  func(percent int)

	forced *codec.Codec
}

// openTarget opens the attached file. A missing file is not an error: it
// behaves as an empty file, matching attach-before-create usage.
func (op *indexOperation) openTarget() (storage.File, int64, error) {
	file, err := op.source.Open(op.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	size, err := file.Size()
	if err != nil {
		file.Close()
		return nil, 0, err
	}
	return file, size, nil
}

// doIndex reads fixed-size blocks from initialPosition to EOF, parses each
// and folds it into the indexing data. The store mutex is never held across
// file I/O. The interrupt flag is checked between blocks.
func (op *indexOperation) doIndex(initialPosition int64) error {
	file, size, err := op.openTarget()
	if err != nil {
		return err
	}
	if file == nil {
		return nil
	}
	defer file.Close()

	state := newIndexingState(size, op.cfg.TabWidth)
	state.encodingGuess = op.data.GetEncodingGuess()
	state.end = initialPosition

	buf := make([]byte, op.cfg.BlockSize)
	pos := initialPosition
	lastPercent := -1
	for pos < size {
		if op.interrupt.Load() {
			return ErrInterrupted
		}
		want := size - pos
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		n, err := file.ReadAt(buf[:want], pos)
		if n > 0 {
			block := buf[:n]
			state.guessEncoding(block, op.forced)
			fast := parseDataBlock(pos, block, state)
			if aerr := op.data.AddAll(pos, block, state.maxLength, fast, state.encodingGuess); aerr != nil {
				return aerr
			}
			pos += int64(n)
			if percent := int(pos * 100 / size); percent != lastPercent {
				lastPercent = percent
				if op.progress != nil {
					op.progress(percent)
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
	}
	return nil
}

// indexResultFor maps a doIndex error to the terminal loading status. Read
// failures abort the pass with Interrupted: same caller contract as a
// cancellation, partial data is not authoritative.
func indexResultFor(path string, err error) IndexResult {
	switch {
	case err == nil:
		return IndexResult{Status: StatusSuccessful}
	case errors.Is(err, ErrInterrupted):
		return IndexResult{Status: StatusInterrupted}
	case errors.Is(err, linepos.ErrNoMemory):
		log.Error().Str("path", path).Msg("line index capacity exhausted")
		return IndexResult{Status: StatusNoMemory}
	default:
		log.Error().Err(err).Str("path", path).Msg("indexing aborted")
		return IndexResult{Status: StatusInterrupted}
	}
}

// FullIndexOperation rebuilds the whole index from offset zero.
type FullIndexOperation struct {
	indexOperation
}

func (op *FullIndexOperation) Start() OperationResult {
	if op.forced == nil {
		op.forced = op.data.GetForcedEncoding()
	}
	op.data.Clear()
	return indexResultFor(op.path, op.doIndex(0))
}

// PartialIndexOperation extends the index from the last indexed offset. A
// file smaller than the indexed size means truncation; the caller must run
// a full re-index.
type PartialIndexOperation struct {
	indexOperation
}

func (op *PartialIndexOperation) Start() OperationResult {
	file, size, err := op.openTarget()
	if err != nil {
		return indexResultFor(op.path, err)
	}
	if file != nil {
		file.Close()
	}
	indexed := op.data.GetSize()
	if size < indexed {
		return CheckResult{Status: FileTruncated}
	}
	if size == indexed {
		return CheckResult{Status: FileUnchanged}
	}
	op.forced = op.data.GetForcedEncoding()
	return indexResultFor(op.path, op.doIndex(indexed))
}

// CheckFileChangesOperation probes the file against the stored size and
// prefix hash without mutating the index.
type CheckFileChangesOperation struct {
	indexOperation
}

func (op *CheckFileChangesOperation) Start() OperationResult {
	file, size, err := op.openTarget()
	if err != nil {
		log.Error().Err(err).Str("path", op.path).Msg("change probe failed")
		return CheckResult{Status: FileTruncated}
	}

	processed := op.data.GetProcessedSize()
	stored := op.data.GetHash()

	if file == nil {
		if processed == 0 {
			return CheckResult{Status: FileUnchanged}
		}
		return CheckResult{Status: FileTruncated}
	}
	defer file.Close()

	if size < processed {
		return CheckResult{Status: FileTruncated}
	}
	if stored.Size > 0 {
		digest, err := op.hashPrefix(file, stored.Size)
		if errors.Is(err, ErrInterrupted) {
			return CheckResult{Status: FileUnchanged}
		}
		if err != nil {
			log.Error().Err(err).Str("path", op.path).Msg("change probe failed")
			return CheckResult{Status: FileTruncated}
		}
		if !bytes.Equal(digest, stored.Digest) {
			return CheckResult{Status: FileTruncated}
		}
	}
	if size > processed {
		return CheckResult{Status: FileDataAdded}
	}
	return CheckResult{Status: FileUnchanged}
}

// hashPrefix recomputes the MD5 over the first n bytes, reading block-wise
// and honoring the interrupt flag.
func (op *CheckFileChangesOperation) hashPrefix(file storage.File, n int64) ([]byte, error) {
	h := md5.New()
	buf := make([]byte, op.cfg.BlockSize)
	var pos int64
	for pos < n {
		if op.interrupt.Load() {
			return nil, ErrInterrupted
		}
		want := n - pos
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		read, err := file.ReadAt(buf[:want], pos)
		if read > 0 {
			h.Write(buf[:read])
			pos += int64(read)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	return h.Sum(nil), nil
}
