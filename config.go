package logview

import (
	"github.com/oarkflow/logview/storage"
	"github.com/oarkflow/logview/storage/mmapfile"
	"github.com/oarkflow/logview/storage/osfile"
)

const (
	// DefaultBlockSize is the read window for indexing passes.
	DefaultBlockSize = 5 * 1024 * 1024

	// DefaultPrefixHashSize bounds the MD5 identity fingerprint to the first
	// 256 KiB of the file. Held stable across sessions.
	DefaultPrefixHashSize = 256 * 1024

	// DefaultTabWidth is the tab stop used when expanding tabs for
	// max-line-length measurement.
	DefaultTabWidth = 8
)

type Config struct {
	BlockSize      int64  `json:"block_size"`
	PrefixHashSize int64  `json:"prefix_hash_size"`
	TabWidth       int    `json:"tab_width"`
	Storage        string `json:"storage"`
	ForcedEncoding string `json:"forced_encoding"`
}

func (c *Config) setDefaults() {
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.PrefixHashSize <= 0 {
		c.PrefixHashSize = DefaultPrefixHashSize
	}
	if c.TabWidth <= 0 {
		c.TabWidth = DefaultTabWidth
	}
}

func getSource(c *Config) storage.Source {
	switch c.Storage {
	case "mmap":
		return mmapfile.New()
	default:
		return osfile.New()
	}
}
