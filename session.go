package logview

import (
	"fmt"
	"sync"

	"github.com/oarkflow/gopool"
	"github.com/oarkflow/gopool/spinlock"
	"github.com/oarkflow/log"
	"github.com/oarkflow/xid"
	maps "github.com/oarkflow/xsync"

	"github.com/oarkflow/logview/codec"
	"github.com/oarkflow/logview/storage"
)

// OpenFile is one attached log file: its shared indexing data, the worker
// driving it and the latest observed worker events.
type OpenFile struct {
	ID     string
	Path   string
	Data   *IndexingData
	Worker *LogDataWorker

	mu            sync.Mutex
	progress      int
	loading       LoadingStatus
	hasLoading    bool
	fileStatus    MonitoredFileStatus
	hasFileStatus bool
}

// Status is a point-in-time snapshot of an open file for presentation.
type Status struct {
	ID            string `json:"id"`
	Path          string `json:"path"`
	Size          int64  `json:"size"`
	ProcessedSize int64  `json:"processed_size"`
	Lines         int    `json:"lines"`
	MaxLength     int    `json:"max_length"`
	Encoding      string `json:"encoding"`
	HashedBytes   int64  `json:"hashed_bytes"`
	Indexing      bool   `json:"indexing"`
	LastStatus    string `json:"last_status,omitempty"`
	LastCheck     string `json:"last_check,omitempty"`
	Progress      int    `json:"progress"`
}

func (f *OpenFile) Status() Status {
	f.mu.Lock()
	s := Status{
		ID:       f.ID,
		Path:     f.Path,
		Progress: f.progress,
	}
	if f.hasLoading {
		s.LastStatus = f.loading.String()
	}
	if f.hasFileStatus {
		s.LastCheck = f.fileStatus.String()
	}
	f.mu.Unlock()

	s.Size = f.Data.GetSize()
	s.ProcessedSize = f.Data.GetProcessedSize()
	s.Lines = f.Data.GetNbLines()
	s.MaxLength = f.Data.GetMaxLength()
	s.Encoding = f.Data.EffectiveEncoding().Name()
	s.HashedBytes = f.Data.GetHash().Size
	s.Indexing = f.Worker.Running()
	return s
}

// consumeEvents is the session's drainer for one worker: it keeps the event
// channel flowing and mirrors the latest progress and terminal statuses into
// the OpenFile snapshot. It exits when the worker closes its channel.
func (f *OpenFile) consumeEvents() {
	for ev := range f.Worker.Events() {
		f.mu.Lock()
		switch e := ev.(type) {
		case ProgressEvent:
			f.progress = e.Percent
		case IndexingFinishedEvent:
			f.loading = e.Status
			f.hasLoading = true
			f.progress = 100
		case CheckFileChangesFinishedEvent:
			f.fileStatus = e.Status
			f.hasFileStatus = true
		}
		f.mu.Unlock()
		if e, ok := ev.(IndexingFinishedEvent); ok {
			log.Info().Str("path", f.Path).Str("status", e.Status.String()).
				Int("lines", f.Data.GetNbLines()).Msg("indexing finished")
		}
	}
}

// Session manages a set of open log files, one worker per file, keyed by
// generated ids.
type Session struct {
	cfg    Config
	source storage.Source
	files  maps.IMap[string, *OpenFile]
	forced *codec.Codec
}

func NewSession(cfg ...*Config) (*Session, error) {
	c := Config{}
	if len(cfg) > 0 && cfg[0] != nil {
		c = *cfg[0]
	}
	c.setDefaults()
	s := &Session{
		cfg:    c,
		source: getSource(&c),
		files:  maps.NewMap[string, *OpenFile](),
	}
	if c.ForcedEncoding != "" {
		enc, ok := codec.Lookup(c.ForcedEncoding)
		if !ok {
			return nil, fmt.Errorf("unknown encoding %q", c.ForcedEncoding)
		}
		s.forced = enc
	}
	return s, nil
}

// Open attaches a file and returns its handle. No indexing is started.
func (s *Session) Open(path string) (*OpenFile, error) {
	data := NewIndexingData(s.cfg.PrefixHashSize)
	worker := NewLogDataWorker(data, s.cfg)
	if err := worker.AttachFile(path); err != nil {
		return nil, err
	}
	if s.forced != nil {
		data.ForceEncoding(s.forced)
	}
	f := &OpenFile{
		ID:     xid.New().String(),
		Path:   path,
		Data:   data,
		Worker: worker,
	}
	go f.consumeEvents()
	s.files.Set(f.ID, f)
	return f, nil
}

func (s *Session) Get(id string) (*OpenFile, bool) {
	return s.files.Get(id)
}

func (s *Session) ForEach(fn func(*OpenFile) bool) {
	s.files.ForEach(func(_ string, f *OpenFile) bool {
		return fn(f)
	})
}

// Close detaches one file, interrupting and releasing its worker.
func (s *Session) Close(id string) error {
	f, ok := s.files.Get(id)
	if !ok {
		return fmt.Errorf("file %s not found", id)
	}
	s.files.Del(id)
	f.Worker.Close()
	return nil
}

func (s *Session) CloseAll() {
	s.files.ForEach(func(id string, f *OpenFile) bool {
		f.Worker.Close()
		s.files.Del(id)
		return true
	})
}

// ForceEncoding overrides the presentation encoding of one open file. Pass
// an empty name to clear the override and fall back to the guess.
func (s *Session) ForceEncoding(id, name string) error {
	f, ok := s.files.Get(id)
	if !ok {
		return fmt.Errorf("file %s not found", id)
	}
	if name == "" {
		f.Data.ForceEncoding(nil)
		return nil
	}
	enc, ok := codec.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown encoding %q", name)
	}
	f.Data.ForceEncoding(enc)
	return nil
}

// IndexAllWithPool opens and fully indexes several files through a worker
// pool. The per-file at-most-one-operation contract still holds: the pool
// only parallelizes across files.
func (s *Session) IndexAllWithPool(paths []string, noOfWorker int) ([]*OpenFile, []error) {
	if len(paths) == 0 {
		return nil, nil
	}
	if noOfWorker <= 0 {
		noOfWorker = 1
	}
	var mu sync.Mutex
	var errs []error
	var opened []*OpenFile
	pool := gopool.NewGoPool(noOfWorker,
		gopool.WithTaskQueueSize(len(paths)),
		gopool.WithLock(new(spinlock.SpinLock)),
		gopool.WithErrorCallback(func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}),
	)
	defer pool.Release()
	for _, path := range paths {
		pool.AddTask(func() (interface{}, error) {
			f, err := s.Open(path)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", path, err)
			}
			mu.Lock()
			opened = append(opened, f)
			mu.Unlock()
			if err := f.Worker.IndexAll(); err != nil {
				return nil, fmt.Errorf("index %s: %w", path, err)
			}
			f.Worker.WaitIdle()
			if status, ok := f.Worker.LastLoadingStatus(); ok && status != StatusSuccessful {
				return nil, fmt.Errorf("index %s: %s", path, status)
			}
			return f, nil
		})
	}
	pool.Wait()
	return opened, errs
}
