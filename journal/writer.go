package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/typecraft-io/typeset/types"
)

// Writer appends frames to one request's journal file.
// All methods are nil-receiver safe, so journaling stays optional at every
// call site without guards.
type Writer struct {
	mu   sync.Mutex
	file *os.File
}

// Create opens a journal file for a request under dir, creating dir as
// needed. The filename is <requestID>.journal.
func Create(dir, requestID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	path := filepath.Join(dir, requestID+".journal")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create journal %s: %w", path, err)
	}
	return &Writer{file: f}, nil
}

// WriteEvent appends a progress event frame.
func (w *Writer) WriteEvent(event types.ProgressEvent) error {
	if w == nil {
		return nil
	}
	return w.writeFrame(&ProgressFrame{Type: ProgressFrameType, Event: event})
}

// WriteOutcome appends the terminal outcome frame.
func (w *Writer) WriteOutcome(outcome *types.Outcome) error {
	if w == nil {
		return nil
	}
	return w.writeFrame(&OutcomeFrame{
		Type:     OutcomeFrameType,
		Success:  outcome.Success,
		Reason:   string(outcome.Reason),
		Details:  outcome.Details,
		PDFBytes: int64(len(outcome.PDF)),
		LogBytes: int64(len(outcome.Log)),
		Ts:       time.Now().UTC().Format(time.RFC3339),
	})
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func (w *Writer) writeFrame(payload any) error {
	frame, err := encodeFrame(payload)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(frame); err != nil {
		return fmt.Errorf("write journal frame: %w", err)
	}
	return nil
}

// Entry is one decoded journal record.
type Entry struct {
	Type    string
	Event   *types.ProgressEvent
	Outcome *OutcomeFrame
}

// Read decodes every frame of a journal file.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dec := NewFrameDecoder(f)
	var entries []Entry
	for {
		payload, err := dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return entries, err
		}

		kind, err := ProbeFrameType(payload)
		if err != nil {
			return entries, err
		}

		switch kind {
		case ProgressFrameType:
			var frame ProgressFrame
			if err := msgpack.Unmarshal(payload, &frame); err != nil {
				return entries, &FrameError{Kind: FrameErrorDecode, Msg: "decode progress frame", Err: err}
			}
			entries = append(entries, Entry{Type: kind, Event: &frame.Event})
		case OutcomeFrameType:
			var frame OutcomeFrame
			if err := msgpack.Unmarshal(payload, &frame); err != nil {
				return entries, &FrameError{Kind: FrameErrorDecode, Msg: "decode outcome frame", Err: err}
			}
			entries = append(entries, Entry{Type: kind, Outcome: &frame})
		default:
			// Unknown frame types are skipped for forward compatibility.
		}
	}
	return entries, nil
}
