package codec

import (
	"bytes"
	"unicode/utf8"

	"github.com/saintfish/chardet"
)

// Statistical guesses below this confidence fall back to the default codec.
const minConfidence = 50

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF32LE = []byte{0xFF, 0xFE, 0x00, 0x00}
	bomUTF32BE = []byte{0x00, 0x00, 0xFE, 0xFF}
)

// DetectBOM reports the codec matching a leading byte-order mark, if any.
func DetectBOM(block []byte) (*Codec, bool) {
	switch {
	case bytes.HasPrefix(block, bomUTF32LE):
		return UTF32LE, true
	case bytes.HasPrefix(block, bomUTF32BE):
		return UTF32BE, true
	case bytes.HasPrefix(block, bomUTF8):
		return UTF8, true
	case bytes.HasPrefix(block, bomUTF16LE):
		return UTF16LE, true
	case bytes.HasPrefix(block, bomUTF16BE):
		return UTF16BE, true
	}
	return nil, false
}

// Detect guesses the encoding of a raw block. BOM wins; bytes that decode
// cleanly as UTF-8 are taken as UTF-8; otherwise a statistical guess is used
// when confident; otherwise the system default.
// The guess is fixed once per operation, switching codecs mid-file would
// invalidate earlier length measurements.
func Detect(block []byte) *Codec {
	if c, ok := DetectBOM(block); ok {
		return c
	}
	if len(block) == 0 {
		return Default()
	}
	if utf8.Valid(block) {
		return UTF8
	}
	result, err := chardet.NewTextDetector().DetectBest(block)
	if err != nil || result.Confidence < minConfidence {
		return Default()
	}
	if c, ok := Lookup(result.Charset); ok {
		return c
	}
	return Default()
}
