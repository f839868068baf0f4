package mcping

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrProtocol marks malformed, truncated or unexpected data on the wire.
// Callers use errors.Is to tell protocol faults from network faults.
var ErrProtocol = errors.New("mcping: protocol error")

const (
	maxVarIntBytes = 5
	// A status response string is at most 32767 UTF-16 units, so 4 bytes each
	// plus headroom for the packet id and length prefix.
	MaxPacketSize = 32767*4 + 16
	maxStringSize = 32767 * 4
)

// AppendVarInt appends v in the protocol's LEB128-style VarInt encoding.
func AppendVarInt(b []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		b = append(b, byte(u)|0x80)
		u >>= 7
	}
	return append(b, byte(u))
}

// ReadVarInt reads one VarInt. Encodings longer than five bytes are a
// protocol error.
func ReadVarInt(r io.ByteReader) (int32, error) {
	var result uint32
	for i := 0; i < maxVarIntBytes; i++ {
		c, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && i > 0 {
				return 0, fmt.Errorf("%w: truncated varint", ErrProtocol)
			}
			return 0, err
		}
		result |= uint32(c&0x7f) << (7 * i)
		if c&0x80 == 0 {
			return int32(result), nil
		}
	}
	return 0, fmt.Errorf("%w: varint longer than %d bytes", ErrProtocol, maxVarIntBytes)
}

// AppendString appends a VarInt length prefix followed by the UTF-8 bytes.
func AppendString(b []byte, s string) []byte {
	b = AppendVarInt(b, int32(len(s)))
	return append(b, s...)
}

// Reader is what the decoding helpers need; *bufio.Reader and *bytes.Reader
// both satisfy it.
type Reader interface {
	io.Reader
	io.ByteReader
}

// ReadString reads a length-prefixed UTF-8 string.
func ReadString(r Reader) (string, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 || n > maxStringSize {
		return "", fmt.Errorf("%w: string length %d out of range", ErrProtocol, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", truncated(err)
	}
	return string(buf), nil
}

// AppendUint16 appends v big-endian, as used for the handshake port field.
func AppendUint16(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}

// WritePacket frames id and payload with a VarInt length prefix and writes
// the packet in a single call.
func WritePacket(w io.Writer, id int32, payload []byte) error {
	body := AppendVarInt(nil, id)
	body = append(body, payload...)
	frame := AppendVarInt(make([]byte, 0, len(body)+maxVarIntBytes), int32(len(body)))
	frame = append(frame, body...)
	_, err := w.Write(frame)
	return err
}

// ReadPacket reads one length-prefixed packet and returns its id and the
// remaining payload.
func ReadPacket(r Reader) (int32, []byte, error) {
	length, err := ReadVarInt(r)
	if err != nil {
		return 0, nil, err
	}
	if length <= 0 || length > MaxPacketSize {
		return 0, nil, fmt.Errorf("%w: packet length %d out of range", ErrProtocol, length)
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return 0, nil, truncated(err)
	}
	br := bytes.NewReader(frame)
	id, err := ReadVarInt(br)
	if err != nil {
		return 0, nil, truncated(err)
	}
	return id, frame[len(frame)-br.Len():], nil
}

// truncated maps short reads of a declared length onto ErrProtocol. Other
// errors (timeouts, resets) pass through untouched.
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated packet: %v", ErrProtocol, err)
	}
	return err
}
