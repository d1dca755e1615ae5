package wm

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"change":"new"}`)
	if err := writeMessage(&buf, msgRunCommand, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	msgType, got, err := readMessage(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msgType != msgRunCommand {
		t.Fatalf("expected type %d, got %d", msgRunCommand, msgType)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %q", got)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := writeMessage(&buf, msgGetTree, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() != headerLen {
		t.Fatalf("expected header-only frame of %d bytes, got %d", headerLen, buf.Len())
	}
	msgType, payload, err := readMessage(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msgType != msgGetTree || len(payload) != 0 {
		t.Fatalf("unexpected frame: type=%d len=%d", msgType, len(payload))
	}
}

func TestReadMessageRejectsBadMagic(t *testing.T) {
	frame := make([]byte, headerLen)
	copy(frame, "not-i3")
	_, _, err := readMessage(bytes.NewReader(frame))
	if err == nil || !strings.Contains(err.Error(), "magic") {
		t.Fatalf("expected magic error, got %v", err)
	}
}

func TestReadMessageRejectsOversizedLength(t *testing.T) {
	frame := make([]byte, headerLen)
	copy(frame, magic)
	binary.LittleEndian.PutUint32(frame[6:10], maxPayload+1)
	_, _, err := readMessage(bytes.NewReader(frame))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size guard error, got %v", err)
	}
}

func TestReadMessageTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := writeMessage(&buf, msgRunCommand, []byte("full payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-3]
	if _, _, err := readMessage(bytes.NewReader(truncated)); err == nil {
		t.Fatalf("expected error on truncated payload")
	}
}

func TestEventTypeFlagAndNames(t *testing.T) {
	if uint32(EventWindow)&eventFlag == 0 {
		t.Fatalf("event types must carry the event flag")
	}
	for want, et := range map[string]EventType{
		"workspace": EventWorkspace,
		"window":    EventWindow,
		"shutdown":  EventShutdown,
		"tick":      EventTick,
	} {
		if et.String() != want {
			t.Fatalf("expected %q, got %q", want, et.String())
		}
	}
	if got := EventType(eventFlag | 99).String(); !strings.HasPrefix(got, "event(") {
		t.Fatalf("unknown event should format numerically, got %q", got)
	}
}

func TestQuote(t *testing.T) {
	if got := Quote(`ws "3"`); got != `"ws \"3\""` {
		t.Fatalf("unexpected quoting: %s", got)
	}
	if got := Quote(`back\slash`); got != `"back\\slash"` {
		t.Fatalf("unexpected quoting: %s", got)
	}
}
