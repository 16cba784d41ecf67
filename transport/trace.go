package transport

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"time"

	"github.com/danderson/finn"
	"github.com/vmihailenco/msgpack/v5"
)

// TraceDirection says whether a traced message was sent or received.
type TraceDirection string

const (
	Sent     TraceDirection = "sent"
	Received TraceDirection = "received"
)

// A Record is one traced message.
type Record struct {
	Time      time.Time      `msgpack:"time"`
	Dir       TraceDirection `msgpack:"dir"`
	Interface uint64         `msgpack:"interface"`
	Message   uint64         `msgpack:"message"`
	Payload   []byte         `msgpack:"payload"`
}

func (r Record) String() string {
	return fmt.Sprintf("%s %s interface=0x%06x message=0x%02x size=%d", r.Time.Format(time.RFC3339Nano), r.Dir, r.Interface, r.Message, len(r.Payload))
}

// Recorder writes a trace of FINN messages as a stream of
// msgpack-encoded Records.
type Recorder struct {
	mu  sync.Mutex
	enc *msgpack.Encoder
	now func() time.Time
}

// NewRecorder returns a Recorder that writes to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{
		enc: msgpack.NewEncoder(w),
		now: time.Now,
	}
}

// Record appends payload to the trace.
func (r *Recorder) Record(dir TraceDirection, payload []byte) error {
	rec := Record{
		Dir:     dir,
		Payload: payload,
	}
	// Unroutable payloads are still traced, without IDs.
	if h, err := finn.ParseHeader(payload); err == nil {
		rec.Interface = h.Interface
		rec.Message = h.Message
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec.Time = r.now()
	if err := r.enc.Encode(&rec); err != nil {
		return fmt.Errorf("encoding trace record: %w", err)
	}
	return nil
}

// ReadTrace returns an iterator over the records of a trace written
// by a Recorder. Iteration stops after the first error.
func ReadTrace(r io.Reader) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		dec := msgpack.NewDecoder(r)
		for {
			var rec Record
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Record{}, fmt.Errorf("decoding trace record: %w", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
