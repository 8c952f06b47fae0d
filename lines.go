package logview

import (
	"errors"
	"fmt"
	"io"
)

// GetLines returns count decoded lines starting at line first. Line bytes
// are read back from the file through the line index and transcoded with
// the effective codec on demand; the index itself never stores contents.
// The range is clamped to the indexed line count.
func (s *Session) GetLines(id string, first, count int) ([]string, error) {
	f, ok := s.files.Get(id)
	if !ok {
		return nil, fmt.Errorf("file %s not found", id)
	}
	if first < 0 || count <= 0 {
		return nil, nil
	}

	idx := f.Data.SnapshotIndex()
	if first >= idx.Len() {
		return nil, nil
	}
	if first+count > idx.Len() {
		count = idx.Len() - first
	}

	var rangeStart int64
	if first > 0 {
		rangeStart = idx.At(first - 1)
	}
	rangeEnd := idx.At(first + count - 1)

	file, err := s.source.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, rangeEnd-rangeStart)
	if n, err := file.ReadAt(buf, rangeStart); err != nil {
		// A full read ending exactly at EOF is not a failure.
		if !errors.Is(err, io.EOF) || n != len(buf) {
			return nil, err
		}
	}

	enc := f.Data.EffectiveEncoding()
	params := enc.Params()
	decoder := enc.NewDecoder()

	lines := make([]string, 0, count)
	start := rangeStart
	for i := first; i < first+count; i++ {
		end := idx.At(i)
		raw := buf[start-rangeStart : end-rangeStart]
		raw = trimEOL(raw, params.UnitWidth, params.LineFeedOffset)
		decoded, err := decoder.Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("decode line %d: %w", i, err)
		}
		lines = append(lines, string(decoded))
		start = end
	}
	return lines, nil
}

// trimEOL removes the trailing encoded LF unit and, when present, the CR
// unit before it.
func trimEOL(raw []byte, unitWidth, lfOffset int) []byte {
	if unitWidth <= 1 {
		if n := len(raw); n > 0 && raw[n-1] == '\n' {
			raw = raw[:n-1]
			if n := len(raw); n > 0 && raw[n-1] == '\r' {
				raw = raw[:n-1]
			}
		}
		return raw
	}
	if len(raw) >= unitWidth && isControlUnit(raw[len(raw)-unitWidth:], lfOffset, '\n') {
		raw = raw[:len(raw)-unitWidth]
		if len(raw) >= unitWidth && isControlUnit(raw[len(raw)-unitWidth:], lfOffset, '\r') {
			raw = raw[:len(raw)-unitWidth]
		}
	}
	return raw
}
