package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// The broker wire format: newline-delimited JSON over a plain TCP stream,
// one frame per line.
const (
	FrameRegister   = "register"
	FrameMessage    = "message"
	FrameNewMessage = "new_message"
)

// A line longer than this is assumed to be garbage and dropped whole.
const maxLineLen = 1 << 20

type Frame struct {
	Type string `json:"type"`

	// register
	UserID  int64   `json:"user_id,omitempty"`
	ChatIDs []int64 `json:"chat_ids,omitempty"`

	// message / new_message
	ChatID  int64           `json:"chat_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewRegisterFrame(userID int64, chatIDs []int64) Frame {
	return Frame{Type: FrameRegister, UserID: userID, ChatIDs: chatIDs}
}

func NewMessageFrame(chatID int64, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("protocol: marshal payload: %w", err)
	}

	return Frame{Type: FrameMessage, ChatID: chatID, Payload: raw}, nil
}

func NewNewMessageFrame(chatID int64, payload json.RawMessage) Frame {
	return Frame{Type: FrameNewMessage, ChatID: chatID, Payload: payload}
}

// Marshal renders the frame as one wire line, newline included, so the
// caller can hand the whole buffer to a single Write.
func (f Frame) Marshal() ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal frame: %w", err)
	}

	return append(b, '\n'), nil
}

// Write marshals the frame and writes it as a single buffered write,
// relying on TCP for ordering.
func Write(w io.Writer, f Frame) error {
	b, err := f.Marshal()
	if err != nil {
		return err
	}

	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}

	return nil
}

// LineDecoder accumulates raw bytes and yields one frame per complete
// line. Malformed lines are dropped without closing anything; a trailing
// partial line stays buffered until the next Feed.
type LineDecoder struct {
	buf     []byte
	dropped int
}

// Feed appends p and returns every frame completed by it.
func (d *LineDecoder) Feed(p []byte) []Frame {
	d.buf = append(d.buf, p...)

	var frames []Frame

	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}

		line := d.buf[:i]
		d.buf = d.buf[i+1:]

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			d.dropped++
			continue
		}

		frames = append(frames, f)
	}

	if len(d.buf) > maxLineLen {
		d.buf = d.buf[:0]
		d.dropped++
	}

	return frames
}

// Dropped reports how many lines were discarded as malformed or oversized.
func (d *LineDecoder) Dropped() int {
	return d.dropped
}
