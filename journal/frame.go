// Package journal persists the progress events and terminal outcome of a
// compilation request as a length-prefixed msgpack frame log on disk.
//
// The frame format is a 4-byte big-endian length prefix followed by a
// msgpack-encoded payload. Frames are discriminated by a "type" field.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/typecraft-io/typeset/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size.
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Frame type discriminants.
const (
	// ProgressFrameType marks a progress event frame.
	ProgressFrameType = "progress"
	// OutcomeFrameType marks the terminal outcome frame.
	OutcomeFrameType = "outcome"
)

// ProgressFrame wraps one progress event.
type ProgressFrame struct {
	Type  string              `msgpack:"type"`
	Event types.ProgressEvent `msgpack:"event"`
}

// OutcomeFrame records the terminal outcome. PDF bytes and the full log
// are not journaled; only their sizes are, to keep journals small.
type OutcomeFrame struct {
	Type     string `msgpack:"type"`
	Success  bool   `msgpack:"success"`
	Reason   string `msgpack:"reason,omitempty"`
	Details  string `msgpack:"details,omitempty"`
	PDFBytes int64  `msgpack:"pdf_bytes"`
	LogBytes int64  `msgpack:"log_bytes"`
	Ts       string `msgpack:"ts"`
}

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// encodeFrame msgpack-encodes payload and prepends the length prefix.
func encodeFrame(payload any) ([]byte, error) {
	body, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if len(body) > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds max %d", len(body), MaxPayloadSize),
		}
	}
	frame := make([]byte, LengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(frame[:LengthPrefixSize], uint32(len(body)))
	copy(frame[LengthPrefixSize:], body)
	return frame, nil
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single raw frame payload from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("frame payload %d exceeds max %d", length, MaxPayloadSize),
		}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read frame payload", Err: err}
	}
	return payload, nil
}

// frameTypeProbe reads only the type discriminant from a payload.
type frameTypeProbe struct {
	Type string `msgpack:"type"`
}

// ProbeFrameType extracts the frame type discriminant without decoding
// the full payload structure.
func ProbeFrameType(payload []byte) (string, error) {
	var probe frameTypeProbe
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return "", &FrameError{Kind: FrameErrorDecode, Msg: "failed to probe frame type", Err: err}
	}
	return probe.Type, nil
}
