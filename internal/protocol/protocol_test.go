package protocol

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestLineDecoder_CompleteAndPartialLines(t *testing.T) {
	var dec LineDecoder

	frames := dec.Feed([]byte(`{"type":"new_message","chat_id":1,"payload":{}}` + "\n" + `{"type":"bad`))

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Type != FrameNewMessage {
		t.Errorf("frame type = %q, want %q", frames[0].Type, FrameNewMessage)
	}
	if frames[0].ChatID != 1 {
		t.Errorf("chat_id = %d, want 1", frames[0].ChatID)
	}

	// The partial line must stay buffered until completed.
	frames = dec.Feed([]byte(`","chat_id":2}` + "\n"))

	if len(frames) != 1 {
		t.Fatalf("got %d frames after completing the line, want 1", len(frames))
	}
	if frames[0].ChatID != 2 {
		t.Errorf("chat_id = %d, want 2", frames[0].ChatID)
	}
}

func TestLineDecoder_DropsMalformedLines(t *testing.T) {
	var dec LineDecoder

	frames := dec.Feed([]byte("not json at all\n{\"type\":\"register\",\"user_id\":7}\n{broken\n"))

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Type != FrameRegister || frames[0].UserID != 7 {
		t.Errorf("unexpected frame: %+v", frames[0])
	}
	if dec.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", dec.Dropped())
	}
}

func TestLineDecoder_SkipsBlankLines(t *testing.T) {
	var dec LineDecoder

	frames := dec.Feed([]byte("\n  \n{\"type\":\"register\"}\n"))

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if dec.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", dec.Dropped())
	}
}

func TestLineDecoder_DropsOversizedLine(t *testing.T) {
	var dec LineDecoder

	dec.Feed(bytes.Repeat([]byte("a"), maxLineLen+1))

	if dec.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", dec.Dropped())
	}

	// The decoder must keep working afterwards.
	frames := dec.Feed([]byte("{\"type\":\"register\"}\n"))
	if len(frames) != 1 {
		t.Fatalf("got %d frames after reset, want 1", len(frames))
	}
}

func TestFrameRoundTrip(t *testing.T) {
	f, err := NewMessageFrame(42, map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("NewMessageFrame: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, f); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		t.Fatal("wire line is not newline-terminated")
	}

	var dec LineDecoder
	frames := dec.Feed(buf.Bytes())

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}

	got := frames[0]
	if got.Type != FrameMessage || got.ChatID != 42 {
		t.Errorf("unexpected frame: %+v", got)
	}

	var payload map[string]string
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["text"] != "hi" {
		t.Errorf("payload text = %q, want %q", payload["text"], "hi")
	}
}
