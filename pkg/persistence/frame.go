package persistence

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

// Frame layout constants.
const (
	// MagicByte marks the start of a frame.
	MagicByte = 0xA5

	// HeaderSize is Magic(1) + OpCode(1) + Length(4) + CRC32(4).
	HeaderSize = 10

	// OpCodeBatch marks a frame whose payload is a sequence of commands
	// that must be applied all together or not at all.
	OpCodeBatch = 0x02

	// MaxFrameSize bounds the payload length accepted from a header.
	MaxFrameSize = 64 << 20
)

var (
	// ErrInvalidMagic indicates the stream lost synchronization.
	ErrInvalidMagic = errors.New("invalid magic byte")
	// ErrChecksumMismatch indicates a corrupted payload.
	ErrChecksumMismatch = errors.New("crc32 checksum mismatch")
	// ErrIncompleteFrame indicates the log ended in the middle of a frame,
	// typically after a crash during a write.
	ErrIncompleteFrame = errors.New("incomplete frame")
	// ErrFrameTooLarge indicates a length field above MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame too large")
)

// FrameWriter writes checksummed frames to an io.Writer.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter wraps w. Wrapping a bufio.Writer keeps header and payload
// in a single syscall.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame encodes payload as [Magic][OpCode][Length][CRC][Payload].
func (fw *FrameWriter) WriteFrame(op byte, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	header := make([]byte, HeaderSize)
	header[0] = MagicByte
	header[1] = op
	binary.LittleEndian.PutUint32(header[2:6], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[6:10], crc32.ChecksumIEEE(payload))

	if _, err := fw.w.Write(header); err != nil {
		return err
	}
	_, err := fw.w.Write(payload)
	return err
}

// ReadFrame reads and validates the next frame. It returns io.EOF only when
// r is exhausted exactly on a frame boundary.
func ReadFrame(r io.Reader) (op byte, payload []byte, err error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, ErrIncompleteFrame
	}
	if header[0] != MagicByte {
		return 0, nil, ErrInvalidMagic
	}

	length := binary.LittleEndian.Uint32(header[2:6])
	expected := binary.LittleEndian.Uint32(header[6:10])
	if length > MaxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}

	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, ErrIncompleteFrame
	}
	if crc32.ChecksumIEEE(payload) != expected {
		return 0, nil, ErrChecksumMismatch
	}
	return header[1], payload, nil
}
