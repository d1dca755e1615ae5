package wm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// The manager speaks the i3 IPC wire format: a 6-byte magic, a little-endian
// uint32 payload length, a little-endian uint32 message type, then a JSON
// payload. Replies reuse the request type; event frames set the high bit.

var magic = []byte("i3-ipc")

const headerLen = 14

// Request message types.
const (
	msgRunCommand    uint32 = 0
	msgGetWorkspaces uint32 = 1
	msgSubscribe     uint32 = 2
	msgGetTree       uint32 = 4
	msgSendTick      uint32 = 10
)

const eventFlag uint32 = 1 << 31

// EventType identifies one subscribed event stream.
type EventType uint32

const (
	EventWorkspace EventType = EventType(eventFlag | 0)
	EventWindow    EventType = EventType(eventFlag | 3)
	EventShutdown  EventType = EventType(eventFlag | 6)
	EventTick      EventType = EventType(eventFlag | 7)
)

func (t EventType) String() string {
	switch t {
	case EventWorkspace:
		return "workspace"
	case EventWindow:
		return "window"
	case EventShutdown:
		return "shutdown"
	case EventTick:
		return "tick"
	default:
		return fmt.Sprintf("event(0x%x)", uint32(t))
	}
}

// maxPayload guards against a corrupted length field pinning the reader.
const maxPayload = 64 << 20

func writeMessage(w io.Writer, msgType uint32, payload []byte) error {
	buf := make([]byte, headerLen+len(payload))
	copy(buf[0:6], magic)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[10:14], msgType)
	copy(buf[headerLen:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func readMessage(r io.Reader) (uint32, []byte, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	if !bytes.Equal(header[0:6], magic) {
		return 0, nil, fmt.Errorf("bad frame magic %q", header[0:6])
	}
	length := binary.LittleEndian.Uint32(header[6:10])
	msgType := binary.LittleEndian.Uint32(header[10:14])
	if length > maxPayload {
		return 0, nil, fmt.Errorf("frame payload too large: %d", length)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return msgType, payload, nil
}
