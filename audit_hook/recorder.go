package audithook

import (
	"context"
	"io"
	"sync"

	json "github.com/goccy/go-json"
)

// WriterRecorder writes each event as one JSON line to an io.Writer.
// It is safe for concurrent use.
type WriterRecorder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterRecorder returns a Recorder that appends JSON lines to w.
func NewWriterRecorder(w io.Writer) *WriterRecorder {
	return &WriterRecorder{enc: json.NewEncoder(w)}
}

// Record implements Recorder.
func (r *WriterRecorder) Record(ctx context.Context, event *AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(event)
}

// MemoryRecorder keeps events in memory. Tests and embedded callers use it
// to inspect the trail.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []*AuditEvent
}

// Record implements Recorder.
func (r *MemoryRecorder) Record(_ context.Context, event *AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns the recorded events in order.
func (r *MemoryRecorder) Events() []*AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*AuditEvent, len(r.events))
	copy(out, r.events)
	return out
}
