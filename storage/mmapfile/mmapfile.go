package mmapfile

import (
	"golang.org/x/exp/mmap"

	"github.com/oarkflow/logview/storage"
)

// Source memory-maps files. Size is fixed at open time, so a partial index
// over a growing file sees the snapshot taken when the operation opened it;
// the next operation re-opens and picks up appended data.
type Source struct{}

func New() *Source {
	return &Source{}
}

func (s *Source) Name() string {
	return "mmap"
}

func (s *Source) Open(path string) (storage.File, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	return &file{r: r}, nil
}

type file struct {
	r *mmap.ReaderAt
}

func (f *file) Size() (int64, error) {
	return int64(f.r.Len()), nil
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	return f.r.ReadAt(p, off)
}

func (f *file) Close() error {
	return f.r.Close()
}
