package logview

import (
	"sync"
	"sync/atomic"

	"github.com/oarkflow/log"
	"github.com/oarkflow/xid"

	"github.com/oarkflow/logview/codec"
	"github.com/oarkflow/logview/storage"
)

const eventBuffer = 256

// LogDataWorker runs index operations against one file, one at a time, off
// the caller's goroutine. It mutates an IndexingData it does not own; the
// data must outlive the worker.
//
// Commands return ErrBusy while an operation is in flight. Outcomes are
// delivered on the Events channel in FIFO order: zero or more progress
// events followed by exactly one terminal finish event per command.
type LogDataWorker struct {
	id     string
	data   *IndexingData
	source storage.Source
	cfg    Config

	interrupt atomic.Bool
	events    chan Event

	mu      sync.Mutex
	path    string
	running bool
	closed  bool

	lastLoading    LoadingStatus
	hasLoading     bool
	lastFileStatus MonitoredFileStatus
	hasFileStatus  bool

	wg sync.WaitGroup
}

func NewLogDataWorker(data *IndexingData, cfg Config) *LogDataWorker {
	cfg.setDefaults()
	return &LogDataWorker{
		id:     xid.New().String(),
		data:   data,
		source: getSource(&cfg),
		cfg:    cfg,
		events: make(chan Event, eventBuffer),
	}
}

// Events is the worker's notification channel. Progress events are dropped
// when the consumer lags; terminal events are never dropped.
func (w *LogDataWorker) Events() <-chan Event {
	return w.events
}

// AttachFile rebinds the worker to a new path. Attaching to a nonexistent
// file works; it appears as an empty file. Callers must first make sure no
// operation is running.
func (w *LogDataWorker) AttachFile(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.running {
		return ErrBusy
	}
	w.path = path
	log.Info().Str("worker", w.id).Str("path", path).Msg("file attached")
	return nil
}

// IndexAll starts a full re-index. An optional forced encoding bypasses
// detection for the whole pass.
func (w *LogDataWorker) IndexAll(forced ...*codec.Codec) error {
	var enc *codec.Codec
	if len(forced) > 0 {
		enc = forced[0]
	}
	return w.run(func(base indexOperation) operation {
		base.forced = enc
		return &FullIndexOperation{indexOperation: base}
	})
}

// IndexAdditionalLines starts a partial index from the current indexed end.
func (w *LogDataWorker) IndexAdditionalLines() error {
	return w.run(func(base indexOperation) operation {
		return &PartialIndexOperation{indexOperation: base}
	})
}

// CheckFileChanges starts a non-mutating change probe.
func (w *LogDataWorker) CheckFileChanges() error {
	return w.run(func(base indexOperation) operation {
		return &CheckFileChangesOperation{indexOperation: base}
	})
}

// Interrupt requests cancellation of the running operation. It is idempotent
// and non-blocking; the operation observes the flag at the next block
// boundary. Cancellation is not a failure.
func (w *LogDataWorker) Interrupt() {
	w.interrupt.Store(true)
}

// Running reports whether an operation is in flight.
func (w *LogDataWorker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// WaitIdle blocks until the in-flight operation, if any, has finished and
// its terminal event has been queued.
func (w *LogDataWorker) WaitIdle() {
	w.wg.Wait()
}

// LastLoadingStatus returns the terminal status of the most recent full or
// partial index, if one has finished.
func (w *LogDataWorker) LastLoadingStatus() (LoadingStatus, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastLoading, w.hasLoading
}

// LastFileStatus returns the most recent file-status outcome, if any.
func (w *LogDataWorker) LastFileStatus() (MonitoredFileStatus, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastFileStatus, w.hasFileStatus
}

// Close interrupts any running operation, waits for it to return and closes
// the events channel. The worker accepts no commands afterwards.
func (w *LogDataWorker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.interrupt.Store(true)
	w.wg.Wait()
	close(w.events)
	log.Info().Str("worker", w.id).Msg("worker closed")
}

func (w *LogDataWorker) run(build func(base indexOperation) operation) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.running {
		w.mu.Unlock()
		return ErrBusy
	}
	w.running = true
	w.interrupt.Store(false)
	path := w.path
	w.wg.Add(1)
	w.mu.Unlock()

	op := build(indexOperation{
		path:      path,
		data:      w.data,
		interrupt: &w.interrupt,
		source:    w.source,
		cfg:       w.cfg,
		progress:  w.emitProgress,
	})

	go func() {
		defer w.wg.Done()
		result := op.Start()

		w.mu.Lock()
		switch r := result.(type) {
		case IndexResult:
			w.lastLoading = r.Status
			w.hasLoading = true
		case CheckResult:
			w.lastFileStatus = r.Status
			w.hasFileStatus = true
		}
		w.running = false
		w.mu.Unlock()

		switch r := result.(type) {
		case IndexResult:
			w.events <- IndexingFinishedEvent{Status: r.Status}
		case CheckResult:
			w.events <- CheckFileChangesFinishedEvent{Status: r.Status}
		}
	}()
	return nil
}

// emitProgress is best-effort: a lagging consumer loses intermediate
// percentages, never the terminal event.
func (w *LogDataWorker) emitProgress(percent int) {
	select {
	case w.events <- ProgressEvent{Percent: percent}:
	default:
	}
}
