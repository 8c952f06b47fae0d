package logview

import (
	"bytes"
	"crypto/md5"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/oarkflow/logview/codec"
)

func writeTemp(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestOp(path string, data *IndexingData, blockSize int64) indexOperation {
	cfg := Config{BlockSize: blockSize}
	cfg.setDefaults()
	return indexOperation{
		path:      path,
		data:      data,
		interrupt: new(atomic.Bool),
		source:    getSource(&cfg),
		cfg:       cfg,
	}
}

func fullIndex(t *testing.T, path string, data *IndexingData, blockSize int64) IndexResult {
	t.Helper()
	op := &FullIndexOperation{indexOperation: newTestOp(path, data, blockSize)}
	result, ok := op.Start().(IndexResult)
	if !ok {
		t.Fatal("full index must return an index result")
	}
	return result
}

func TestFullIndexSimple(t *testing.T) {
	path := writeTemp(t, []byte("a\nbb\nccc\n"))
	data := NewIndexingData(0)
	if r := fullIndex(t, path, data, 0); r.Status != StatusSuccessful {
		t.Fatalf("status = %s", r.Status)
	}
	if data.GetNbLines() != 3 {
		t.Fatalf("lines = %d", data.GetNbLines())
	}
	for i, want := range []int64{2, 5, 9} {
		if got := data.GetPosForLine(i); got != want {
			t.Errorf("pos[%d] = %d, want %d", i, got, want)
		}
	}
	if data.GetMaxLength() != 3 {
		t.Fatalf("maxLength = %d", data.GetMaxLength())
	}
	if data.GetSize() != 9 {
		t.Fatalf("size = %d", data.GetSize())
	}
	if data.GetEncodingGuess() != codec.UTF8 {
		t.Fatal("guess should be UTF-8")
	}
}

func TestFullIndexEmptyFile(t *testing.T) {
	path := writeTemp(t, nil)
	data := NewIndexingData(0)
	if r := fullIndex(t, path, data, 0); r.Status != StatusSuccessful {
		t.Fatalf("status = %s", r.Status)
	}
	if data.GetNbLines() != 0 || data.GetSize() != 0 {
		t.Fatal("empty file must produce an empty index")
	}
	if data.EffectiveEncoding() != codec.Default() {
		t.Fatal("empty file presents the system default encoding")
	}
}

func TestFullIndexMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-yet-created.log")
	data := NewIndexingData(0)
	if r := fullIndex(t, path, data, 0); r.Status != StatusSuccessful {
		t.Fatalf("status = %s", r.Status)
	}
	if data.GetNbLines() != 0 {
		t.Fatal("missing file behaves as empty")
	}
}

func TestFullIndexSmallBlocksMatchSingleBlock(t *testing.T) {
	content := []byte("héllo wörld\nsecond line\nthird\n")
	path := writeTemp(t, content)

	ref := NewIndexingData(0)
	fullIndex(t, path, ref, 0)

	small := NewIndexingData(0)
	if r := fullIndex(t, path, small, 5); r.Status != StatusSuccessful {
		t.Fatalf("status = %s", r.Status)
	}
	if small.GetNbLines() != ref.GetNbLines() {
		t.Fatalf("lines %d != %d", small.GetNbLines(), ref.GetNbLines())
	}
	for i := 0; i < ref.GetNbLines(); i++ {
		if small.GetPosForLine(i) != ref.GetPosForLine(i) {
			t.Fatalf("pos[%d] differs", i)
		}
	}
	if small.GetMaxLength() != ref.GetMaxLength() {
		t.Fatalf("max %d != %d", small.GetMaxLength(), ref.GetMaxLength())
	}
	if !bytes.Equal(small.GetHash().Digest, ref.GetHash().Digest) {
		t.Fatal("hash differs between block sizes")
	}
}

func TestFullIndexInterrupted(t *testing.T) {
	path := writeTemp(t, []byte("a\nb\nc\n"))
	data := NewIndexingData(0)
	op := &FullIndexOperation{indexOperation: newTestOp(path, data, 2)}
	op.interrupt.Store(true)
	result, ok := op.Start().(IndexResult)
	if !ok || result.Status != StatusInterrupted {
		t.Fatalf("result = %#v, want interrupted", result)
	}
}

func TestFullIndexForcedEncoding(t *testing.T) {
	path := writeTemp(t, []byte{0xE9, '\n'})
	data := NewIndexingData(0)
	op := &FullIndexOperation{indexOperation: newTestOp(path, data, 0)}
	op.forced = codec.Latin1
	if r := op.Start().(IndexResult); r.Status != StatusSuccessful {
		t.Fatalf("status = %s", r.Status)
	}
	if data.GetEncodingGuess() != codec.Latin1 {
		t.Fatal("forced codec must be used throughout, detector not consulted")
	}
	if data.GetMaxLength() != 1 {
		t.Fatalf("maxLength = %d, want 1", data.GetMaxLength())
	}
}

func TestPartialIndexAfterAppend(t *testing.T) {
	path := writeTemp(t, []byte("hello\n"))
	data := NewIndexingData(0)
	fullIndex(t, path, data, 0)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("world\n")
	f.Close()

	op := &PartialIndexOperation{indexOperation: newTestOp(path, data, 0)}
	result, ok := op.Start().(IndexResult)
	if !ok || result.Status != StatusSuccessful {
		t.Fatalf("result = %#v", result)
	}
	if data.GetNbLines() != 2 {
		t.Fatalf("lines = %d", data.GetNbLines())
	}
	if data.GetPosForLine(0) != 6 || data.GetPosForLine(1) != 12 {
		t.Fatalf("offsets = [%d %d], want [6 12]", data.GetPosForLine(0), data.GetPosForLine(1))
	}
	if data.GetSize() != 12 {
		t.Fatalf("size = %d", data.GetSize())
	}
}

func TestPartialIndexMatchesFullReindex(t *testing.T) {
	initial := []byte("first\npartial tail")
	appended := []byte(" done\nlast one\n")
	path := writeTemp(t, initial)

	incremental := NewIndexingData(0)
	fullIndex(t, path, incremental, 3)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.Write(appended)
	f.Close()

	op := &PartialIndexOperation{indexOperation: newTestOp(path, incremental, 3)}
	if r := op.Start().(IndexResult); r.Status != StatusSuccessful {
		t.Fatalf("partial failed: %s", r.Status)
	}

	reindexed := NewIndexingData(0)
	fullIndex(t, path, reindexed, 3)

	if incremental.GetNbLines() != reindexed.GetNbLines() {
		t.Fatalf("lines %d != %d", incremental.GetNbLines(), reindexed.GetNbLines())
	}
	for i := 0; i < reindexed.GetNbLines(); i++ {
		if incremental.GetPosForLine(i) != reindexed.GetPosForLine(i) {
			t.Fatalf("pos[%d]: %d != %d", i, incremental.GetPosForLine(i), reindexed.GetPosForLine(i))
		}
	}
	if incremental.GetMaxLength() != reindexed.GetMaxLength() {
		t.Fatalf("max %d != %d", incremental.GetMaxLength(), reindexed.GetMaxLength())
	}
	ih, rh := incremental.GetHash(), reindexed.GetHash()
	if ih.Size != rh.Size || !bytes.Equal(ih.Digest, rh.Digest) {
		t.Fatal("hash differs from a full re-index")
	}
}

func TestPartialIndexUnchanged(t *testing.T) {
	path := writeTemp(t, []byte("stable\n"))
	data := NewIndexingData(0)
	fullIndex(t, path, data, 0)
	op := &PartialIndexOperation{indexOperation: newTestOp(path, data, 0)}
	result, ok := op.Start().(CheckResult)
	if !ok || result.Status != FileUnchanged {
		t.Fatalf("result = %#v, want unchanged", result)
	}
}

func TestPartialIndexTruncated(t *testing.T) {
	path := writeTemp(t, []byte("abcdef\n"))
	data := NewIndexingData(0)
	fullIndex(t, path, data, 0)
	if err := os.WriteFile(path, []byte("ab\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	op := &PartialIndexOperation{indexOperation: newTestOp(path, data, 0)}
	result, ok := op.Start().(CheckResult)
	if !ok || result.Status != FileTruncated {
		t.Fatalf("result = %#v, want truncated", result)
	}
}

func checkChanges(t *testing.T, path string, data *IndexingData) MonitoredFileStatus {
	t.Helper()
	op := &CheckFileChangesOperation{indexOperation: newTestOp(path, data, 0)}
	result, ok := op.Start().(CheckResult)
	if !ok {
		t.Fatal("check must return a file status")
	}
	return result.Status
}

func TestCheckFileChangesUnchanged(t *testing.T) {
	path := writeTemp(t, []byte("x\ny"))
	data := NewIndexingData(0)
	fullIndex(t, path, data, 0)
	if got := checkChanges(t, path, data); got != FileUnchanged {
		t.Fatalf("status = %s, want unchanged", got)
	}
}

func TestCheckFileChangesDataAdded(t *testing.T) {
	path := writeTemp(t, []byte("one\n"))
	data := NewIndexingData(0)
	fullIndex(t, path, data, 0)
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	f.WriteString("two\n")
	f.Close()
	if got := checkChanges(t, path, data); got != FileDataAdded {
		t.Fatalf("status = %s, want data added", got)
	}
	// The probe must not mutate the index.
	if data.GetNbLines() != 1 || data.GetSize() != 4 {
		t.Fatal("check mutated the index")
	}
}

func TestCheckFileChangesTruncated(t *testing.T) {
	path := writeTemp(t, []byte("abcdef\n"))
	data := NewIndexingData(0)
	fullIndex(t, path, data, 0)
	if err := os.WriteFile(path, []byte("abc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := checkChanges(t, path, data); got != FileTruncated {
		t.Fatalf("status = %s, want truncated", got)
	}
}

func TestCheckFileChangesRewritten(t *testing.T) {
	// Same size, different leading bytes: the prefix hash catches it.
	path := writeTemp(t, []byte("abcdef\n"))
	data := NewIndexingData(0)
	fullIndex(t, path, data, 0)
	if err := os.WriteFile(path, []byte("zzzzzz\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := checkChanges(t, path, data); got != FileTruncated {
		t.Fatalf("status = %s, want truncated", got)
	}
}

func TestHashMatchesPrefix(t *testing.T) {
	content := []byte("some log content\nmore lines here\n")
	path := writeTemp(t, content)
	data := NewIndexingData(0)
	fullIndex(t, path, data, 7)
	h := data.GetHash()
	want := md5.Sum(content)
	if h.Size != int64(len(content)) || !bytes.Equal(h.Digest, want[:]) {
		t.Fatalf("hash = %+v", h)
	}
}

func TestMmapSourceIndexing(t *testing.T) {
	path := writeTemp(t, []byte("a\nbb\nccc\n"))
	data := NewIndexingData(0)
	cfg := Config{Storage: "mmap"}
	cfg.setDefaults()
	op := &FullIndexOperation{indexOperation: indexOperation{
		path:      path,
		data:      data,
		interrupt: new(atomic.Bool),
		source:    getSource(&cfg),
		cfg:       cfg,
	}}
	if r := op.Start().(IndexResult); r.Status != StatusSuccessful {
		t.Fatalf("status = %s", r.Status)
	}
	if data.GetNbLines() != 3 || data.GetSize() != 9 {
		t.Fatalf("mmap index: lines=%d size=%d", data.GetNbLines(), data.GetSize())
	}
}
