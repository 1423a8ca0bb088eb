package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	ggrepErrors "github.com/ggrep/ggrep/internal/errors"
)

// DefaultMaxFrameBytes bounds a single frame body (spec §4.11:
// "max_request_bytes / max_response_bytes caps, enforced before the body is
// read").
const DefaultMaxFrameBytes = 16 << 20

// Conn wraps a byte stream with the length-prefixed frame codec: a 4-byte
// little-endian length prefix followed by a JSON body.
type Conn struct {
	rw            io.ReadWriter
	maxFrameBytes uint32
}

// NewConn wraps rw with the frame codec. maxFrameBytes of 0 uses
// DefaultMaxFrameBytes.
func NewConn(rw io.ReadWriter, maxFrameBytes uint32) *Conn {
	if maxFrameBytes == 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return &Conn{rw: rw, maxFrameBytes: maxFrameBytes}
}

// WriteEnvelope serializes env as one frame: u32 LE length prefix + JSON.
func (c *Conn) WriteEnvelope(env *Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if uint32(len(body)) > c.maxFrameBytes {
		return ggrepErrors.New(ggrepErrors.KindInvalidRequest, "response frame exceeds max_response_bytes")
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := c.rw.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := c.rw.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadEnvelope reads and decodes one frame, enforcing maxFrameBytes against
// the length prefix before any body bytes are read.
func (c *Conn) ReadEnvelope() (*Envelope, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.rw, header[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length > c.maxFrameBytes {
		return nil, ggrepErrors.New(ggrepErrors.KindInvalidRequest,
			fmt.Sprintf("frame length %d exceeds max_request_bytes %d", length, c.maxFrameBytes))
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(c.rw, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ggrepErrors.Wrap(ggrepErrors.KindInvalidRequest, "malformed frame body", err)
	}
	return &env, nil
}
