package wire

import (
	"errors"
	"io"
)

const (
	// FrameHeaderSize is the frame header length in bytes.
	FrameHeaderSize = 4

	// MaxPayloadSize is the largest payload one frame carries.
	MaxPayloadSize = 65535
)

// FrameType identifies a frame's payload.
type FrameType uint8

const (
	FrameHello    FrameType = 0x00 // connection setup, carries session info
	FrameSnapshot FrameType = 0x01 // full serialized tree
	FramePatches  FrameType = 0x02 // patch set for one flush
	FramePing     FrameType = 0x03 // client keepalive
	FramePong     FrameType = 0x04 // keepalive reply
	FrameError    FrameType = 0x05 // error message
)

func (ft FrameType) String() string {
	switch ft {
	case FrameHello:
		return "Hello"
	case FrameSnapshot:
		return "Snapshot"
	case FramePatches:
		return "Patches"
	case FramePing:
		return "Ping"
	case FramePong:
		return "Pong"
	case FrameError:
		return "Error"
	default:
		return "Unknown"
	}
}

// FrameFlags carry optional processing hints.
type FrameFlags uint8

const (
	FlagCompressed FrameFlags = 0x01 // payload is gzip compressed
	FlagFinal      FrameFlags = 0x02 // last frame of a logical batch
)

// Has reports whether flag is set.
func (ff FrameFlags) Has(flag FrameFlags) bool {
	return ff&flag != 0
}

// ErrFrameTooLarge is returned for payloads over MaxPayloadSize.
var ErrFrameTooLarge = errors.New("wire: frame payload too large")

// Frame is one transport unit.
//
// Wire format: 1 byte type, 1 byte flags, 2 bytes big-endian payload
// length, then the payload.
type Frame struct {
	Type    FrameType
	Flags   FrameFlags
	Payload []byte
}

// NewFrame creates a frame with no flags.
func NewFrame(ft FrameType, payload []byte) *Frame {
	return &Frame{Type: ft, Payload: payload}
}

// Encode returns the frame's bytes, header included.
func (f *Frame) Encode() []byte {
	length := len(f.Payload)
	buf := make([]byte, FrameHeaderSize+length)
	buf[0] = byte(f.Type)
	buf[1] = byte(f.Flags)
	buf[2] = byte(length >> 8)
	buf[3] = byte(length)
	copy(buf[FrameHeaderSize:], f.Payload)
	return buf
}

// DecodeFrame decodes a frame from data, which must contain the full
// header and payload.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < FrameHeaderSize {
		return nil, io.ErrUnexpectedEOF
	}

	ft := FrameType(data[0])
	flags := FrameFlags(data[1])
	length := int(data[2])<<8 | int(data[3])

	if len(data) < FrameHeaderSize+length {
		return nil, io.ErrUnexpectedEOF
	}

	payload := make([]byte, length)
	copy(payload, data[FrameHeaderSize:FrameHeaderSize+length])

	return &Frame{Type: ft, Flags: flags, Payload: payload}, nil
}

// ReadFrame reads one complete frame from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	ft := FrameType(header[0])
	flags := FrameFlags(header[1])
	length := int(header[2])<<8 | int(header[3])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	return &Frame{Type: ft, Flags: flags, Payload: payload}, nil
}

// WriteFrame writes one complete frame to w.
func WriteFrame(w io.Writer, f *Frame) error {
	if len(f.Payload) > MaxPayloadSize {
		return ErrFrameTooLarge
	}
	_, err := w.Write(f.Encode())
	return err
}
