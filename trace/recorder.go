package trace

import (
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Recorder writes events as a CBOR stream. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	id      string
	seq     uint64
	encoder *cbor.Encoder
	closer  io.Closer
	closed  bool
	now     func() time.Time
}

// NewRecorder returns a recorder writing to w with a new session ID. If w
// is an io.Closer it is closed by Close.
func NewRecorder(w io.Writer) *Recorder {
	r := &Recorder{
		id:      uuid.New().String(),
		encoder: newEncoder(w),
		now:     time.Now,
	}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// SessionID returns the ID stamped on every event of the recorder.
func (r *Recorder) SessionID() string {
	return r.id
}

// Record stamps and writes an event. Events recorded after Close are
// dropped.
func (r *Recorder) Record(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.seq++
	event.SessionID = r.id
	event.Seq = r.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now()
	}
	return r.encoder.Encode(event)
}

// Close closes the underlying writer. It is safe to call Close multiple
// times.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
