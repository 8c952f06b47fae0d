package osfile

import (
	"os"

	"github.com/oarkflow/logview/storage"
)

// Source reads through plain os.File handles using pread.
type Source struct{}

func New() *Source {
	return &Source{}
}

func (s *Source) Name() string {
	return "os"
}

func (s *Source) Open(path string) (storage.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &file{f: f}, nil
}

type file struct {
	f *os.File
}

func (f *file) Size() (int64, error) {
	info, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	return f.f.ReadAt(p, off)
}

func (f *file) Close() error {
	return f.f.Close()
}
