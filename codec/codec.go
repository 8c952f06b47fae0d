package codec

import (
	"strings"

	maps "github.com/oarkflow/xsync"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// Params describe how to scan raw bytes of an encoding: the width of one
// code unit, the position of the 0x0A byte within the encoded U+000A unit,
// and the continuation-byte mask for variable-width encodings. A byte b is a
// continuation byte when ContinuationMask != 0 and
// b&ContinuationMask == ContinuationBits; continuation bytes do not count as
// code points when measuring line lengths.
type Params struct {
	UnitWidth        int
	LineFeedOffset   int
	ContinuationMask byte
	ContinuationBits byte
}

// Codec couples a named text encoding with its scan parameters.
type Codec struct {
	name   string
	enc    encoding.Encoding
	params Params
}

func (c *Codec) Name() string { return c.name }

func (c *Codec) Encoding() encoding.Encoding { return c.enc }

func (c *Codec) Params() Params { return c.params }

// NewDecoder returns a decoder for presenting raw line bytes as UTF-8.
func (c *Codec) NewDecoder() *encoding.Decoder {
	return c.enc.NewDecoder()
}

var registry maps.IMap[string, *Codec]

func register(name string, enc encoding.Encoding, params Params) *Codec {
	c := &Codec{name: name, enc: enc, params: params}
	registry.Set(name, c)
	return c
}

var (
	UTF8    *Codec
	UTF16LE *Codec
	UTF16BE *Codec
	UTF32LE *Codec
	UTF32BE *Codec
	Latin1  *Codec
	Win1252 *Codec
)

func init() {
	registry = maps.NewMap[string, *Codec]()

	single := Params{UnitWidth: 1, LineFeedOffset: 0}
	UTF8 = register("UTF-8", unicode.UTF8,
		Params{UnitWidth: 1, LineFeedOffset: 0, ContinuationMask: 0xC0, ContinuationBits: 0x80})
	UTF16LE = register("UTF-16LE",
		unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
		Params{UnitWidth: 2, LineFeedOffset: 0})
	UTF16BE = register("UTF-16BE",
		unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
		Params{UnitWidth: 2, LineFeedOffset: 1})
	UTF32LE = register("UTF-32LE",
		utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM),
		Params{UnitWidth: 4, LineFeedOffset: 0})
	UTF32BE = register("UTF-32BE",
		utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM),
		Params{UnitWidth: 4, LineFeedOffset: 3})
	Latin1 = register("ISO-8859-1", charmap.ISO8859_1, single)
	Win1252 = register("windows-1252", charmap.Windows1252, single)
}

// Default is the system default codec used when detection is inconclusive.
func Default() *Codec { return UTF8 }

// Lookup resolves a codec by name. Unknown names are resolved through the
// WHATWG index so common aliases (latin1, utf8, cp1252) work; aliased
// single-byte encodings get standard one-byte scan parameters.
func Lookup(name string) (*Codec, bool) {
	if c, ok := registry.Get(name); ok {
		return c, true
	}
	if c, ok := registry.Get(strings.ToUpper(name)); ok {
		return c, true
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, false
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		return nil, false
	}
	if c, ok := registry.Get(canonical); ok {
		return c, true
	}
	for _, c := range []*Codec{UTF8, UTF16LE, UTF16BE, UTF32LE, UTF32BE, Latin1, Win1252} {
		if name, nerr := htmlindex.Name(c.enc); nerr == nil && name == canonical {
			return c, true
		}
	}
	return register(canonical, enc, Params{UnitWidth: 1, LineFeedOffset: 0}), true
}
