// Package stream delivers tree snapshots to an observer.
//
// A Sink receives every snapshot the engine produces, in order. Sinks must
// treat snapshots as read-only. A Send error means the observer is gone; the
// engine stops emitting after the first one.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ShayCichocki/recursor/internal/logging"
	"github.com/ShayCichocki/recursor/pkg/models"
)

// ErrTransport marks a snapshot that could not be delivered.
var ErrTransport = errors.New("transport fault")

// Sink receives snapshots.
type Sink interface {
	Send(ctx context.Context, snap models.Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, snap models.Snapshot) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, snap models.Snapshot) error {
	return f(ctx, snap)
}

// Discard drops every snapshot.
var Discard Sink = SinkFunc(func(context.Context, models.Snapshot) error { return nil })

// SSEWriter frames snapshots as server-sent events: "data: <json>\n\n".
type SSEWriter struct {
	w *bufio.Writer
}

// NewSSEWriter wraps w. Every Send flushes, so the observer sees each
// snapshot as soon as it is produced.
func NewSSEWriter(w *bufio.Writer) *SSEWriter {
	return &SSEWriter{w: w}
}

// Send implements Sink.
func (s *SSEWriter) Send(_ context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("%w: write event: %w", ErrTransport, err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush event: %w", ErrTransport, err)
	}
	return nil
}

// JSONLines writes one snapshot document per line.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLines creates a JSONLines sink writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

// Send implements Sink.
func (j *JSONLines) Send(_ context.Context, snap models.Snapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(snap); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// LogSink logs a one-line summary of every snapshot.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log *logging.Logger) *LogSink {
	return &LogSink{log: log}
}

// Send implements Sink. It never fails.
func (l *LogSink) Send(_ context.Context, snap models.Snapshot) error {
	if snap.Tree == nil {
		return nil
	}
	counts := snap.Tree.StateCounts()
	l.log.Debugw("snapshot",
		"root", snap.Tree.ID,
		"root_state", snap.Tree.State,
		"units", snap.Tree.Count(),
		"thinking", counts[models.UnitStateThinking],
		"done", counts[models.UnitStateDone],
		"failed", counts[models.UnitStateFailed],
	)
	return nil
}

// Multi fans out to several sinks in order and stops at the first error.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink. Nil sinks are skipped.
func NewMulti(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return Discard
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &Multi{sinks: filtered}
}

// Send implements Sink.
func (m *Multi) Send(ctx context.Context, snap models.Snapshot) error {
	for _, s := range m.sinks {
		if err := s.Send(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

// Latest keeps the most recent snapshot and a count of snapshots seen.
type Latest struct {
	mu    sync.Mutex
	snap  models.Snapshot
	count int
}

// Send implements Sink.
func (l *Latest) Send(_ context.Context, snap models.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = snap
	l.count++
	return nil
}

// Snapshot returns the most recent snapshot.
func (l *Latest) Snapshot() models.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap
}

// Count returns the number of snapshots received.
func (l *Latest) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Recorder keeps every snapshot it receives.
type Recorder struct {
	mu    sync.Mutex
	snaps []models.Snapshot
}

// Send implements Sink.
func (r *Recorder) Send(_ context.Context, snap models.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	return nil
}

// Snapshots returns a copy of the recorded sequence.
func (r *Recorder) Snapshots() []models.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Snapshot(nil), r.snaps...)
}
