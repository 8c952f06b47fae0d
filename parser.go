package logview

import (
	"bytes"

	"github.com/oarkflow/logview/codec"
	"github.com/oarkflow/logview/linepos"
)

// indexingState is the per-operation scratch threaded through block parses.
// It is never shared: only the running operation touches it.
type indexingState struct {
	params codec.Params

	pos              int64 // absolute offset of the next unparsed byte
	lineLength       int   // code points in the current (unterminated) line
	additionalSpaces int   // tab-expansion carry for the current line
	maxLength        int   // running max over terminated lines
	end              int64 // one past the terminator of the last emitted line
	fileSize         int64

	tabWidth int

	// leftover holds a trailing partial code unit of a fixed-width encoding,
	// prepended to the next block so a terminator split across blocks is
	// neither missed nor duplicated.
	leftover []byte

	encodingGuess *codec.Codec
	fileCodec     *codec.Codec
}

func newIndexingState(fileSize int64, tabWidth int) *indexingState {
	if tabWidth <= 0 {
		tabWidth = DefaultTabWidth
	}
	return &indexingState{fileSize: fileSize, tabWidth: tabWidth}
}

// guessEncoding fixes the working codec for the operation. The first block
// decides; later blocks never re-guess.
func (state *indexingState) guessEncoding(block []byte, forced *codec.Codec) {
	if state.fileCodec != nil {
		return
	}
	if forced != nil {
		state.encodingGuess = forced
		state.fileCodec = forced
	} else {
		if state.encodingGuess == nil {
			state.encodingGuess = codec.Detect(block)
		}
		state.fileCodec = state.encodingGuess
	}
	state.params = state.fileCodec.Params()
}

// parseDataBlock scans one block for line terminators. It returns the
// line-end offsets found and mutates the state's length carries and end
// marker. blockStart is the absolute file offset of block[0].
func parseDataBlock(blockStart int64, block []byte, state *indexingState) *linepos.Fast {
	fast := linepos.NewFast()
	if state.params.UnitWidth <= 1 {
		parseSingleByte(blockStart, block, state, fast)
	} else {
		parseFixedWidth(blockStart, block, state, fast)
	}
	state.pos = blockStart + int64(len(block))
	return fast
}

func (state *indexingState) endLine(endOffset int64, fast *linepos.Fast) {
	fast.Append(endOffset)
	if length := state.lineLength + state.additionalSpaces; length > state.maxLength {
		state.maxLength = length
	}
	state.lineLength = 0
	state.additionalSpaces = 0
	state.end = endOffset
}

func (state *indexingState) expandTab() {
	col := state.lineLength + state.additionalSpaces
	state.additionalSpaces += state.tabWidth - 1 - col%state.tabWidth
	state.lineLength++
}

func parseSingleByte(blockStart int64, block []byte, state *indexingState, fast *linepos.Fast) {
	mask := state.params.ContinuationMask
	bits := state.params.ContinuationBits
	i := 0
	for i < len(block) {
		next := bytes.IndexByte(block[i:], '\n')
		if next < 0 {
			next = len(block) - i
		}
		for _, b := range block[i : i+next] {
			switch {
			case mask != 0 && b&mask == bits:
				// continuation byte, not a code point
			case b == '\t':
				state.expandTab()
			default:
				state.lineLength++
			}
		}
		i += next
		if i == len(block) {
			return
		}
		state.endLine(blockStart+int64(i)+1, fast)
		i++
	}
}

func parseFixedWidth(blockStart int64, block []byte, state *indexingState, fast *linepos.Fast) {
	w := state.params.UnitWidth
	lf := state.params.LineFeedOffset

	data := block
	dataStart := blockStart
	if len(state.leftover) > 0 {
		data = append(state.leftover, block...)
		dataStart -= int64(len(state.leftover))
		state.leftover = nil
	}
	complete := len(data) / w * w
	if complete < len(data) {
		state.leftover = append([]byte(nil), data[complete:]...)
		data = data[:complete]
	}

	for u := 0; u < len(data); u += w {
		unit := data[u : u+w]
		switch {
		case isControlUnit(unit, lf, '\n'):
			state.endLine(dataStart+int64(u)+int64(w), fast)
		case isControlUnit(unit, lf, '\t'):
			state.expandTab()
		default:
			state.lineLength++
		}
	}
}

// isControlUnit reports whether a fixed-width code unit encodes the given
// ASCII control character: the character byte at the line-feed offset and
// zeroes everywhere else.
func isControlUnit(unit []byte, offset int, ch byte) bool {
	if unit[offset] != ch {
		return false
	}
	for i, b := range unit {
		if i != offset && b != 0 {
			return false
		}
	}
	return true
}
